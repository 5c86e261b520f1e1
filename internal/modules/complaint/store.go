package complaint

import (
	"context"
	"time"

	"github.com/nk521/Complaint-Bot/pkg/models"
)

// Store is the persistence the complaint module needs.
// Lookups return nil, nil when nothing matches.
type Store interface {
	EnsureUser(ctx context.Context, id string) (*models.User, error)
	SetBlacklisted(ctx context.Context, id string, blacklisted bool, reason string) error

	AddGroup(ctx context.Context, g *models.Group) error
	GroupByIdentifier(ctx context.Context, identifier string) (*models.Group, error)
	Group(ctx context.Context, id string) (*models.Group, error)

	AddAdmin(ctx context.Context, a *models.Admin) error
	AdminsOf(ctx context.Context, groupID string) ([]*models.Admin, error)
	Admin(ctx context.Context, id string) (*models.Admin, error)
	AdminRoles(ctx context.Context, userID string) ([]*models.Admin, error)

	CreateThread(ctx context.Context, t *models.Thread, first *models.Message) error
	Thread(ctx context.Context, id int64) (*models.Thread, error)
	ThreadsBy(ctx context.Context, userID string) ([]*models.Thread, error)
	ThreadsAssigned(ctx context.Context, adminIDs []string) ([]*models.Thread, error)
	SetThreadStatus(ctx context.Context, id int64, status models.ThreadStatus, at time.Time) error

	Hide(ctx context.Context, threadID int64, userID string) error
	IsHidden(ctx context.Context, threadID int64, userID string) (bool, error)
	AddMessage(ctx context.Context, m *models.Message) error
	Messages(ctx context.Context, threadID int64) ([]*models.Message, error)
}
