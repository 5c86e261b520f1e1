// Package database provides the MongoDB connection and cached data access.
// Writes made while the database is offline are queued and replayed on reconnect.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nk521/Complaint-Bot/pkg/logger"
)

// ErrNotConnected is returned by reads while the database is offline
var ErrNotConnected = errors.New("database not connected")

// Collection names
const (
	UsersCollection    = "users"
	GroupsCollection   = "groups"
	AdminsCollection   = "admins"
	ThreadsCollection  = "threads"
	HideFromCollection = "hidefrom"
	MessagesCollection = "messages"
	CountersCollection = "counters"
)

const (
	opSet    = "set"
	opInsert = "insert"
)

// QueuedOperation is a write waiting for the database to come back
type QueuedOperation struct {
	Collection string
	Query      bson.M
	Operation  string
	Data       interface{}
}

// Database manages the MongoDB connection
type Database struct {
	url  string
	name string

	mu          sync.RWMutex
	client      *mongo.Client
	db          *mongo.Database
	connected   bool
	reconnect   *time.Ticker
	stop        chan struct{}
	stopOnce    sync.Once
	collections map[string]*mongo.Collection

	queueMu sync.Mutex
	queue   []QueuedOperation
}

// New creates an unconnected Database for url and database name
func New(url, name string) *Database {
	return &Database{
		url:         url,
		name:        name,
		stop:        make(chan struct{}),
		collections: make(map[string]*mongo.Collection),
	}
}

// Connect establishes the connection. On failure a reconnect loop is started and
// the database keeps working in offline mode.
func (d *Database) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	logger.System("Connecting to the database...", "DB")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(d.url).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err == nil {
		err = client.Ping(ctx, readpref.Primary())
		if err != nil {
			_ = client.Disconnect(context.Background())
		}
	}
	if err != nil {
		logger.Critical(fmt.Sprintf("Could not connect to the database: %v", err), "DB")
		d.startReconnect()
		return err
	}

	d.client = client
	d.db = client.Database(d.name)
	d.collections = make(map[string]*mongo.Collection)
	d.connected = true
	if d.reconnect != nil {
		d.reconnect.Stop()
		d.reconnect = nil
	}

	logger.Success("Connected to the database", "DB")

	go d.syncOfflineWrites()
	return nil
}

// startReconnect retries every 15 seconds until connected. Callers hold d.mu.
func (d *Database) startReconnect() {
	if d.reconnect != nil {
		return
	}
	d.reconnect = time.NewTicker(15 * time.Second)
	ticks := d.reconnect.C

	go func() {
		for {
			select {
			case <-ticks:
				logger.Info("Retrying database connection...", "DB")
				if err := d.Connect(context.Background()); err == nil {
					return
				}
			case <-d.stop:
				return
			}
		}
	}()
}

// Disconnect stops reconnecting and closes the client
func (d *Database) Disconnect(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reconnect != nil {
		d.reconnect.Stop()
		d.reconnect = nil
	}
	if d.client == nil {
		return nil
	}

	err := d.client.Disconnect(ctx)
	d.client = nil
	d.db = nil
	d.connected = false
	logger.Warn("Database disconnected", "DB")
	return err
}

// Connected reports whether the database is reachable
func (d *Database) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Ping measures the database response time
func (d *Database) Ping(ctx context.Context) (time.Duration, error) {
	d.mu.RLock()
	client := d.client
	d.mu.RUnlock()

	if client == nil {
		return 0, ErrNotConnected
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(ctx, readpref.Primary())
	return time.Since(start), err
}

// Status returns a human readable connection status
func (d *Database) Status(ctx context.Context) (string, bool) {
	if _, err := d.Ping(ctx); err != nil {
		return "🔴 | Offline", false
	}
	return "🟢 | Online", true
}

// Collection returns the named collection, nil while offline
func (d *Database) Collection(name string) *mongo.Collection {
	d.mu.RLock()
	if col, ok := d.collections[name]; ok {
		d.mu.RUnlock()
		return col
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	col := d.db.Collection(name)
	d.collections[name] = col
	return col
}

// NextSequence atomically increments and returns the counter called name
func (d *Database) NextSequence(ctx context.Context, name string) (int64, error) {
	col := d.Collection(CountersCollection)
	if col == nil {
		return 0, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := col.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return counter.Seq, nil
}

// Enqueue stores a write to replay once connected
func (d *Database) Enqueue(op QueuedOperation) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	d.queue = append(d.queue, op)
}

// QueueLen returns the number of pending offline writes
func (d *Database) QueueLen() int {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return len(d.queue)
}

// syncOfflineWrites replays queued writes; failures are queued again
func (d *Database) syncOfflineWrites() {
	d.queueMu.Lock()
	ops := d.queue
	d.queue = nil
	d.queueMu.Unlock()

	if len(ops) == 0 {
		return
	}

	logger.System(fmt.Sprintf("Syncing %d pending operations with the database...", len(ops)), "DB-Sync")

	var failed []QueuedOperation
	for _, op := range ops {
		if err := d.apply(op); err != nil {
			logger.Error(fmt.Sprintf("Could not sync %s on '%s': %v", op.Operation, op.Collection, err), "DB-Sync")
			failed = append(failed, op)
		}
	}

	if len(failed) > 0 {
		d.queueMu.Lock()
		d.queue = append(d.queue, failed...)
		d.queueMu.Unlock()
		logger.Warn(fmt.Sprintf("%d operations will be retried", len(failed)), "DB-Sync")
		return
	}
	logger.Success("Offline writes synced", "DB-Sync")
}

func (d *Database) apply(op QueuedOperation) error {
	col := d.Collection(op.Collection)
	if col == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch op.Operation {
	case opSet:
		_, err = col.UpdateOne(ctx, op.Query, bson.M{"$set": op.Data}, options.Update().SetUpsert(true))
	case opInsert:
		_, err = col.InsertOne(ctx, op.Data)
	default:
		err = fmt.Errorf("unknown operation %q", op.Operation)
	}
	return err
}
