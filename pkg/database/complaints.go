package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nk521/Complaint-Bot/pkg/models"
)

// ComplaintStore persists users, groups, admins and complaint threads
type ComplaintStore struct {
	db        *Database
	users     *DataManager[models.User]
	groups    *DataManager[models.Group]
	admins    *DataManager[models.Admin]
	threads   *DataManager[models.Thread]
	hideFrom  *DataManager[models.HideFrom]
	messages  *DataManager[models.Message]
	blacklist *Blacklist
}

// NewComplaintStore creates the data managers of every complaint collection
func NewComplaintStore(db *Database) *ComplaintStore {
	users := NewDataManager[models.User](UsersCollection, db)
	return &ComplaintStore{
		db:        db,
		users:     users,
		groups:    NewDataManager[models.Group](GroupsCollection, db),
		admins:    NewDataManager[models.Admin](AdminsCollection, db),
		threads:   NewDataManager[models.Thread](ThreadsCollection, db),
		hideFrom:  NewDataManager[models.HideFrom](HideFromCollection, db),
		messages:  NewDataManager[models.Message](MessagesCollection, db),
		blacklist: NewBlacklist(users),
	}
}

// Blacklist returns the in-memory blacklist kept in sync by SetBlacklisted
func (s *ComplaintStore) Blacklist() *Blacklist {
	return s.blacklist
}

// Stats summarizes the store for the status API
type Stats struct {
	CachedDocuments  int `json:"cachedDocuments"`
	PendingWrites    int `json:"pendingWrites"`
	BlacklistedUsers int `json:"blacklistedUsers"`
}

// Stats reports cache occupancy, queued offline writes and the blacklist size
func (s *ComplaintStore) Stats() Stats {
	cached := s.users.CacheSize() + s.groups.CacheSize() + s.admins.CacheSize() +
		s.threads.CacheSize() + s.hideFrom.CacheSize() + s.messages.CacheSize()
	return Stats{
		CachedDocuments:  cached,
		PendingWrites:    s.db.QueueLen(),
		BlacklistedUsers: s.blacklist.Size(),
	}
}

// Status reports whether the database behind the store is reachable
func (s *ComplaintStore) Status(ctx context.Context) (string, bool) {
	return s.db.Status(ctx)
}

var byID = options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

// EnsureUser returns the user row of id, creating it if needed
func (s *ComplaintStore) EnsureUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.Get(ctx, bson.M{"_id": id})
	if err != nil || u != nil {
		return u, err
	}

	now := time.Now().UTC()
	u, err = s.users.Set(ctx, bson.M{"_id": id}, bson.M{"created_at": now})
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &models.User{ID: id, CreatedAt: now}
	}
	return u, nil
}

// SetBlacklisted flags or unflags a user and updates the blacklist
func (s *ComplaintStore) SetBlacklisted(ctx context.Context, id string, blacklisted bool, reason string) error {
	u, err := s.users.Set(ctx, bson.M{"_id": id}, bson.M{"is_blacklisted": blacklisted, "reason": reason})
	if err != nil {
		return err
	}
	if u == nil {
		u = &models.User{ID: id, IsBlacklisted: blacklisted, Reason: reason}
	}

	if blacklisted {
		s.blacklist.Add(u)
	} else {
		s.blacklist.Remove(id)
	}
	return nil
}

// AddGroup creates or renames a group
func (s *ComplaintStore) AddGroup(ctx context.Context, g *models.Group) error {
	_, err := s.groups.Set(ctx, bson.M{"_id": g.ID}, bson.M{"identifier": g.Identifier})
	return err
}

// GroupByIdentifier finds a group by its short name
func (s *ComplaintStore) GroupByIdentifier(ctx context.Context, identifier string) (*models.Group, error) {
	return s.groups.Get(ctx, bson.M{"identifier": identifier})
}

// Group finds a group by id
func (s *ComplaintStore) Group(ctx context.Context, id string) (*models.Group, error) {
	return s.groups.Get(ctx, bson.M{"_id": id})
}

// AddAdmin registers a.UserID as admin of a.GroupID unless it already is
func (s *ComplaintStore) AddAdmin(ctx context.Context, a *models.Admin) error {
	existing, err := s.admins.Get(ctx, bson.M{"user_id": a.UserID, "group_id": a.GroupID})
	if err != nil {
		return err
	}
	if existing != nil {
		a.ID = existing.ID
		return nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return s.admins.Insert(ctx, a)
}

// AdminsOf lists the admins of a group
func (s *ComplaintStore) AdminsOf(ctx context.Context, groupID string) ([]*models.Admin, error) {
	return s.admins.Find(ctx, bson.M{"group_id": groupID}, byID)
}

// Admin finds an admin registration by id
func (s *ComplaintStore) Admin(ctx context.Context, id string) (*models.Admin, error) {
	return s.admins.Get(ctx, bson.M{"_id": id})
}

// CreateThread numbers and stores a new thread together with its first message
func (s *ComplaintStore) CreateThread(ctx context.Context, t *models.Thread, first *models.Message) error {
	id, err := s.db.NextSequence(ctx, ThreadsCollection)
	if err != nil {
		return err
	}

	t.ID = id
	if err := s.threads.Insert(ctx, t); err != nil {
		return fmt.Errorf("insert thread %d: %w", id, err)
	}

	first.ThreadID = id
	return s.AddMessage(ctx, first)
}

// Thread finds a thread by id
func (s *ComplaintStore) Thread(ctx context.Context, id int64) (*models.Thread, error) {
	return s.threads.Get(ctx, bson.M{"_id": id})
}

// ThreadsBy lists the threads opened by a user, oldest first
func (s *ComplaintStore) ThreadsBy(ctx context.Context, userID string) ([]*models.Thread, error) {
	return s.threads.Find(ctx, bson.M{"by_user_id": userID}, byID)
}

// ThreadsAssigned lists the threads assigned to any of the given admin registrations
func (s *ComplaintStore) ThreadsAssigned(ctx context.Context, adminIDs []string) ([]*models.Thread, error) {
	if len(adminIDs) == 0 {
		return nil, nil
	}
	return s.threads.Find(ctx, bson.M{"assigned_to": bson.M{"$in": adminIDs}}, byID)
}

// AdminRoles lists the admin registrations of a user
func (s *ComplaintStore) AdminRoles(ctx context.Context, userID string) ([]*models.Admin, error) {
	return s.admins.Find(ctx, bson.M{"user_id": userID}, byID)
}

// SetThreadStatus changes the status of a thread
func (s *ComplaintStore) SetThreadStatus(ctx context.Context, id int64, status models.ThreadStatus, at time.Time) error {
	update := bson.M{"status": status, "resolved_at": nil}
	if status == models.ThreadResolved {
		update["resolved_at"] = at
	}
	_, err := s.threads.Set(ctx, bson.M{"_id": id}, update)
	return err
}

// Hide hides a thread from a user
func (s *ComplaintStore) Hide(ctx context.Context, threadID int64, userID string) error {
	hidden, err := s.IsHidden(ctx, threadID, userID)
	if err != nil || hidden {
		return err
	}
	return s.hideFrom.Insert(ctx, &models.HideFrom{ID: uuid.NewString(), ThreadID: threadID, UserID: userID})
}

// IsHidden reports whether a thread is hidden from a user
func (s *ComplaintStore) IsHidden(ctx context.Context, threadID int64, userID string) (bool, error) {
	h, err := s.hideFrom.Get(ctx, bson.M{"thread_id": threadID, "user_id": userID})
	return h != nil, err
}

// AddMessage appends a message to a thread
func (s *ComplaintStore) AddMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.messages.Insert(ctx, m)
}

// Messages lists the messages of a thread in order
func (s *ComplaintStore) Messages(ctx context.Context, threadID int64) ([]*models.Message, error) {
	return s.messages.Find(ctx, bson.M{"thread_id": threadID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}
