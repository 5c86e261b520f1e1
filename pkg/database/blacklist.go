package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/models"
)

// Blacklist keeps the blacklisted users in memory so commands can be vetoed
// without a database round trip.
type Blacklist struct {
	users *DataManager[models.User]

	mu         sync.RWMutex
	entries    map[string]*models.User
	stop       chan struct{}
	refreshing bool
}

// NewBlacklist creates an empty blacklist backed by the users collection
func NewBlacklist(users *DataManager[models.User]) *Blacklist {
	return &Blacklist{users: users, entries: make(map[string]*models.User)}
}

// Refresh reloads every blacklisted user from the database
func (b *Blacklist) Refresh(ctx context.Context) error {
	users, err := b.users.Find(ctx, bson.M{"is_blacklisted": true})
	if err != nil {
		return err
	}

	entries := make(map[string]*models.User, len(users))
	for _, u := range users {
		entries[u.ID] = u
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	logger.Debug(fmt.Sprintf("Blacklist refreshed with %d entries", len(entries)), "Blacklist")
	return nil
}

// StartAutoRefresh refreshes every interval until StopAutoRefresh. A running refresher is replaced.
func (b *Blacklist) StartAutoRefresh(interval time.Duration) {
	b.mu.Lock()
	if b.refreshing {
		close(b.stop)
	}
	b.refreshing = true
	b.stop = make(chan struct{})
	stop := b.stop
	b.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := b.Refresh(context.Background()); err != nil {
					logger.Error("Blacklist refresh failed: "+err.Error(), "Blacklist")
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopAutoRefresh stops the refresher
func (b *Blacklist) StopAutoRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshing {
		close(b.stop)
		b.refreshing = false
	}
}

// IsBlacklisted reports whether userID may not use the bot
func (b *Blacklist) IsBlacklisted(userID string) bool {
	_, ok := b.Get(userID)
	return ok
}

// Get returns the blacklist entry of userID
func (b *Blacklist) Get(userID string) (*models.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.entries[userID]
	return u, ok
}

// Add records a blacklisted user in memory
func (b *Blacklist) Add(u *models.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[u.ID] = u
}

// Remove forgets a user
func (b *Blacklist) Remove(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, userID)
}

// Size returns the number of blacklisted users
func (b *Blacklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
