package complaint

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/models"
	"github.com/nk521/Complaint-Bot/pkg/transport/transporttest"
)

// memStore is an in-memory Store
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	groups   map[string]*models.Group
	admins   []*models.Admin
	threads  map[int64]*models.Thread
	hidden   map[string]bool
	messages []*models.Message
	seq      int64
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*models.User{},
		groups:  map[string]*models.Group{},
		threads: map[int64]*models.Thread{},
		hidden:  map[string]bool{},
	}
}

func (s *memStore) EnsureUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{ID: id}
		s.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) SetBlacklisted(ctx context.Context, id string, blacklisted bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{ID: id}
		s.users[id] = u
	}
	u.IsBlacklisted, u.Reason = blacklisted, reason
	return nil
}

func (s *memStore) AddGroup(ctx context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memStore) GroupByIdentifier(ctx context.Context, identifier string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Identifier == identifier {
			return g, nil
		}
	}
	return nil, nil
}

func (s *memStore) Group(ctx context.Context, id string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id], nil
}

func (s *memStore) AddAdmin(ctx context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.admins {
		if e.UserID == a.UserID && e.GroupID == a.GroupID {
			return nil
		}
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("admin-%d", len(s.admins)+1)
	}
	s.admins = append(s.admins, a)
	return nil
}

func (s *memStore) filterAdmins(keep func(a *models.Admin) bool) []*models.Admin {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Admin
	for _, a := range s.admins {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) AdminsOf(ctx context.Context, groupID string) ([]*models.Admin, error) {
	return s.filterAdmins(func(a *models.Admin) bool { return a.GroupID == groupID }), nil
}

func (s *memStore) Admin(ctx context.Context, id string) (*models.Admin, error) {
	found := s.filterAdmins(func(a *models.Admin) bool { return a.ID == id })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (s *memStore) AdminRoles(ctx context.Context, userID string) ([]*models.Admin, error) {
	return s.filterAdmins(func(a *models.Admin) bool { return a.UserID == userID }), nil
}

func (s *memStore) CreateThread(ctx context.Context, t *models.Thread, first *models.Message) error {
	s.mu.Lock()
	s.seq++
	t.ID = s.seq
	cp := *t
	s.threads[t.ID] = &cp
	s.mu.Unlock()

	first.ThreadID = t.ID
	return s.AddMessage(ctx, first)
}

func (s *memStore) Thread(ctx context.Context, id int64) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) filterThreads(keep func(t *models.Thread) bool) []*models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Thread
	for _, t := range s.threads {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Thread) int { return int(a.ID - b.ID) })
	return out
}

func (s *memStore) ThreadsBy(ctx context.Context, userID string) ([]*models.Thread, error) {
	return s.filterThreads(func(t *models.Thread) bool { return t.ByUserID == userID }), nil
}

func (s *memStore) ThreadsAssigned(ctx context.Context, adminIDs []string) ([]*models.Thread, error) {
	return s.filterThreads(func(t *models.Thread) bool { return slices.Contains(adminIDs, t.AssignedTo) }), nil
}

func (s *memStore) SetThreadStatus(ctx context.Context, id int64, status models.ThreadStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threads[id]
	t.Status = status
	t.ResolvedAt = nil
	if status == models.ThreadResolved {
		t.ResolvedAt = &at
	}
	return nil
}

func hideKey(threadID int64, userID string) string { return fmt.Sprintf("%d/%s", threadID, userID) }

func (s *memStore) Hide(ctx context.Context, threadID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[hideKey(threadID, userID)] = true
	return nil
}

func (s *memStore) IsHidden(ctx context.Context, threadID int64, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden[hideKey(threadID, userID)], nil
}

func (s *memStore) AddMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) Messages(ctx context.Context, threadID int64) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ Store = (*memStore)(nil)

type harness struct {
	t     *testing.T
	bot   *bot.Bot
	fake  *transporttest.Fake
	store *memStore
}

// newHarness starts with owner "1" and group "hostel" (chat "g1") handled by admins "10" and "11"
func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Bot.OwnerID = "1"
	cfg.Bot.Prefix = "!"
	cfgStore, err := config.NewStore(afero.NewMemMapFs(), "config.toml", cfg)
	require.NoError(t, err)

	store := newMemStore()
	fake := transporttest.New()
	b := bot.New(fake, cfgStore, bot.WithRateLimit(nil), bot.WithModules(Factory(store)))
	require.NoError(t, b.LoadAll())

	h := &harness{t: t, bot: b, fake: fake, store: store}
	h.inChat("g1", "1", "!addgroup hostel")
	h.run("1", "!addadmin hostel 10")
	h.run("1", "!addadmin hostel 11")
	return h
}

func (h *harness) inChat(chatID, sender, text string) string {
	h.t.Helper()
	msg := transporttest.Message(sender, text)
	msg.ChatID = chatID
	before := len(h.fake.Sent())
	require.NoError(h.t, h.bot.HandleCommand(context.Background(), msg))

	for _, s := range h.fake.Sent()[before:] {
		if s.ChatID == chatID {
			return s.Text
		}
	}
	return ""
}

func (h *harness) run(sender, text string) string {
	h.t.Helper()
	return h.inChat("chat", sender, text)
}

// sentTo returns the texts delivered to chatID
func (h *harness) sentTo(chatID string) []string {
	var out []string
	for _, s := range h.fake.Sent() {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func TestListEmptyCreatesUser(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "You have no threads yet!", h.run("5", "!list"))
	_, ok := h.store.users["5"]
	assert.True(t, ok)
}

func TestNewThreadAssignsLeastLoadedAdmin(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Complaint #1 registered for `hostel`.", h.run("5", "!new hostel water is cold"))
	assert.Equal(t, "Complaint #2 registered for `hostel`.", h.run("6", "!new hostel lights are out"))

	first, _ := h.store.Thread(context.Background(), 1)
	second, _ := h.store.Thread(context.Background(), 2)
	assert.NotEqual(t, first.AssignedTo, second.AssignedTo)
	assert.Equal(t, models.ThreadOpen, first.Status)

	msgs, _ := h.store.Messages(context.Background(), 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "water is cold", msgs[0].Text)

	admin, _ := h.store.Admin(context.Background(), first.AssignedTo)
	require.NotEmpty(t, h.sentTo(admin.UserID))
	assert.Contains(t, h.sentTo(admin.UserID)[0], "New complaint #1")

	assert.Equal(t, "**Thread:** #1 [open] hostel", h.run("5", "!ls"))
}

func TestNewThreadKeepsComplaintLayout(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Complaint #1 registered for `hostel`.", h.run("5", "!new hostel\nRoom 12:\n  - no water\n  - no  light"))

	msgs, _ := h.store.Messages(context.Background(), 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Room 12:\n  - no water\n  - no  light", msgs[0].Text)
}

func TestNewThreadValidation(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Usage: `!new <group> <complaint>`", h.run("5", "!new hostel"))
	assert.Equal(t, "No group called `gym`.", h.run("5", "!new gym broken"))

	h.inChat("g2", "1", "!addgroup empty")
	assert.Equal(t, "Group `empty` has nobody to handle complaints yet.", h.run("5", "!new empty hello"))

	// an admin complaining about their own group goes to the other admin
	h.run("10", "!new hostel noisy neighbours")
	th, _ := h.store.Thread(context.Background(), 1)
	admin, _ := h.store.Admin(context.Background(), th.AssignedTo)
	assert.Equal(t, "11", admin.UserID)
}

func TestSeeAndReply(t *testing.T) {
	h := newHarness(t)
	h.run("5", "!new hostel water is cold")
	th, _ := h.store.Thread(context.Background(), 1)
	admin, _ := h.store.Admin(context.Background(), th.AssignedTo)

	assert.Equal(t, "Thread #1 not found.", h.run("6", "!see 1"))
	assert.Equal(t, "Thread #9 not found.", h.run("5", "!see 9"))
	assert.Equal(t, "`abc` is not a thread number.", h.run("5", "!see abc"))

	assert.Equal(t, "Reply added to thread #1.", h.run(admin.UserID, "!reply #1 we are on it\nplumber booked"))
	assert.Contains(t, h.sentTo("5"), "💬 Your complaint #1 got a reply:\n\nwe are on it\nplumber booked")

	out := h.run("5", "!see 1")
	assert.Contains(t, out, "**Thread #1** [open]\n**Group:** hostel")
	assert.Contains(t, out, "**complainant**: water is cold\n**admin**: we are on it\nplumber booked")

	assert.Contains(t, h.run(admin.UserID, "!list"), "**Assigned to you:**\n**Thread:** #1 [open] hostel")
	assert.Equal(t, "Usage: `!reply <thread> <message>`", h.run("5", "!reply 1"))
}

func TestResolve(t *testing.T) {
	h := newHarness(t)
	h.run("5", "!new hostel water is cold")
	th, _ := h.store.Thread(context.Background(), 1)
	admin, _ := h.store.Admin(context.Background(), th.AssignedTo)

	assert.Equal(t, "Thread #1 not found.", h.run("6", "!resolve 1"))
	assert.Equal(t, "Thread #1 marked as resolved.", h.run(admin.UserID, "!resolve 1"))
	assert.Contains(t, h.sentTo("5"), "✅ Your complaint #1 was marked as resolved.")

	th, _ = h.store.Thread(context.Background(), 1)
	assert.Equal(t, models.ThreadResolved, th.Status)
	require.NotNil(t, th.ResolvedAt)

	assert.Equal(t, "Thread #1 is already resolved.", h.run("5", "!resolve 1"))
	assert.Equal(t, "Thread #1 is already resolved.", h.run("5", "!reply 1 thanks"))
	assert.Contains(t, h.run("5", "!see 1"), "**Resolved:**")
}

func TestHide(t *testing.T) {
	h := newHarness(t)
	h.run("5", "!new hostel water is cold")
	th, _ := h.store.Thread(context.Background(), 1)
	admin, _ := h.store.Admin(context.Background(), th.AssignedTo)

	assert.Equal(t, "You can't hide thread #1.", h.run("5", "!hide 1 5"))
	assert.Equal(t, "A complaint can't be hidden from the user who filed it.", h.run(admin.UserID, "!hide 1 5"))
	assert.Equal(t, "Thread #1 is now hidden from "+admin.UserID+".", h.run("1", "!hide 1 "+admin.UserID))

	assert.Equal(t, "Thread #1 not found.", h.run(admin.UserID, "!see 1"))
	assert.Equal(t, "You have no threads yet!", h.run(admin.UserID, "!list"))
	assert.Contains(t, h.run("1", "!see 1"), "**Thread #1**")
}

func TestSuperuserCommands(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "❌ Only superusers can do that.", h.run("5", "!addgroup gym"))
	assert.Equal(t, "❌ Only superusers can do that.", h.run("5", "!block 6 spam"))

	h.store.users["5"].IsSuperuser = true
	assert.Equal(t, "This chat is now the group `gym`.", h.inChat("g3", "5", "!addgroup gym"))
	assert.Equal(t, "The name `gym` is already taken.", h.inChat("g4", "5", "!addgroup gym"))
	assert.Equal(t, "12 is now an admin of `gym`.", h.run("5", "!addadmin gym 12"))
	assert.Equal(t, "No group called `pool`.", h.run("5", "!addadmin pool 12"))

	assert.Equal(t, "🔨 6 is blocked. Reason: spamming the queue", h.run("5", "!block 6 spamming the queue"))
	assert.True(t, h.store.users["6"].IsBlacklisted)
	assert.Equal(t, "🔨 7 is blocked. Reason: No reason given", h.run("5", "!block 7"))
	assert.Equal(t, "That user can't be blocked.", h.run("5", "!block 1"))

	assert.Equal(t, "6 is no longer blocked.", h.run("5", "!unblock 6"))
	assert.False(t, h.store.users["6"].IsBlacklisted)
}

func TestSplitFirst(t *testing.T) {
	tests := []struct{ in, first, rest string }{
		{"", "", ""},
		{"  12  ", "12", ""},
		{"12 hello there", "12", "hello there"},
		{"12\n line two", "12", "line two"},
	}
	for _, tt := range tests {
		first, rest := splitFirst(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.rest, rest, tt.in)
	}
}

func TestNotifyFailureDoesNotFailCommand(t *testing.T) {
	h := newHarness(t)
	h.fake.SendErr = func(n int, text string) error {
		if text[0] != 'C' {
			return fmt.Errorf("chat not found")
		}
		return nil
	}

	assert.Equal(t, "Complaint #1 registered for `hostel`.", h.run("5", "!new hostel water is cold"))
}
