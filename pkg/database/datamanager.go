package database

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// DataManagerOptions configures a DataManager
type DataManagerOptions struct {
	MaxCacheSize int
}

// DefaultDataManagerOptions returns the default options
func DefaultDataManagerOptions() DataManagerOptions {
	return DataManagerOptions{MaxCacheSize: 1000}
}

// DataManager gives cached access to one collection. Single-document reads are
// served from an LRU cache keyed by the query. A document can be cached under
// several queries, so every write drops the whole cache of the collection.
type DataManager[T any] struct {
	name    string
	db      *Database
	options DataManagerOptions
	cache   *lruCache
}

// NewDataManager creates a DataManager for the collection called name
func NewDataManager[T any](name string, db *Database, opts ...DataManagerOptions) *DataManager[T] {
	o := DefaultDataManagerOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return &DataManager[T]{name: name, db: db, options: o, cache: newLRUCache(o.MaxCacheSize)}
}

func (dm *DataManager[T]) collection() *mongo.Collection {
	if !dm.db.Connected() {
		return nil
	}
	return dm.db.Collection(dm.name)
}

// cacheKey builds a deterministic key from a query
func (dm *DataManager[T]) cacheKey(query bson.M) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, query[k]))
	}
	return fmt.Sprintf("%s:{%s}", dm.name, strings.Join(parts, ","))
}

// Get returns the document matching query, nil if there is none
func (dm *DataManager[T]) Get(ctx context.Context, query bson.M) (*T, error) {
	key := dm.cacheKey(query)
	if v, ok := dm.cache.get(key); ok {
		return v.(*T), nil
	}

	col := dm.collection()
	if col == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result T
	if err := col.FindOne(ctx, query).Decode(&result); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		logger.Warn(fmt.Sprintf("Read from '%s' failed: %v", dm.name, err), "DataManager")
		return nil, err
	}

	dm.cache.put(key, &result)
	return &result, nil
}

// Find returns every document matching query. Results are not cached.
func (dm *DataManager[T]) Find(ctx context.Context, query bson.M, opts ...*options.FindOptions) ([]*T, error) {
	col := dm.collection()
	if col == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := col.Find(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var results []*T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			logger.Warn(fmt.Sprintf("Skipping undecodable document in '%s': %v", dm.name, err), "DataManager")
			continue
		}
		results = append(results, &doc)
	}
	return results, cursor.Err()
}

// Set upserts the fields in data on the document matching query and returns the result.
// While offline the write is queued and (nil, nil) is returned.
func (dm *DataManager[T]) Set(ctx context.Context, query bson.M, data interface{}) (*T, error) {
	dm.ClearCache()
	op := QueuedOperation{Collection: dm.name, Query: query, Operation: opSet, Data: data}

	col := dm.collection()
	if col == nil {
		logger.Warn(fmt.Sprintf("DB offline, queueing write to '%s'", dm.name), "DataManager")
		dm.db.Enqueue(op)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result T
	if err := col.FindOneAndUpdate(ctx, query, bson.M{"$set": data}, opts).Decode(&result); err != nil {
		logger.Error(fmt.Sprintf("Write to '%s' failed, queueing it: %v", dm.name, err), "DataManager")
		dm.db.Enqueue(op)
		return nil, err
	}

	dm.cache.put(dm.cacheKey(query), &result)
	return &result, nil
}

// Insert adds a new document. While offline the insert is queued.
func (dm *DataManager[T]) Insert(ctx context.Context, doc *T) error {
	dm.ClearCache()
	col := dm.collection()
	if col == nil {
		logger.Warn(fmt.Sprintf("DB offline, queueing insert into '%s'", dm.name), "DataManager")
		dm.db.Enqueue(QueuedOperation{Collection: dm.name, Operation: opInsert, Data: doc})
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := col.InsertOne(ctx, doc)
	return err
}

// ClearCache drops every cached document of the collection
func (dm *DataManager[T]) ClearCache() {
	dm.cache.clear()
}

// CacheSize returns the number of cached documents
func (dm *DataManager[T]) CacheSize() int {
	return dm.cache.size()
}

// lruCache is a size-bounded least recently used cache
type lruCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key   string
	value interface{}
}

func newLRUCache(limit int) *lruCache {
	return &lruCache{limit: limit, entries: make(map[string]*list.Element), order: list.New()}
}

func (c *lruCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).value, true
}

func (c *lruCache) put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = &cacheEntry{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	if c.limit > 0 && c.order.Len() > c.limit {
		oldest := c.order.Back()
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.order.Remove(oldest)
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
