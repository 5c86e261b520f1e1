package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/database"
	"github.com/nk521/Complaint-Bot/pkg/transport"
	"github.com/nk521/Complaint-Bot/pkg/transport/transporttest"
)

type pingModule struct{}

func (pingModule) Name() string { return "debug" }
func (pingModule) Commands() []*bot.Command {
	return []*bot.Command{bot.NewCommand("ping", "Check the bot", func(ctx context.Context, msg *transport.Message) (string, error) {
		return "pong", nil
	}).WithAliases("p")}
}
func (pingModule) Listeners() []bot.EventHandler { return nil }

type fakeDB struct{ online bool }

func (fakeDB) Stats() database.Stats {
	return database.Stats{CachedDocuments: 4, PendingWrites: 2, BlacklistedUsers: 1}
}

func (f fakeDB) Status(context.Context) (string, bool) {
	if f.online {
		return "🟢 | Online", true
	}
	return "🔴 | Offline", false
}

func get(t *testing.T, s *Server, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func newTestServer(t *testing.T) (*Server, *bot.Bot) {
	t.Helper()
	b := bot.New(transporttest.New(), nil, bot.WithModules(bot.ModuleFactory{
		Name: "debug",
		New:  func(*bot.Bot) bot.Module { return pingModule{} },
	}))
	require.NoError(t, b.LoadAll())

	s := NewServer("", RateLimitConfig{Window: time.Minute, MaxRequests: 3})
	SetupAPIRoutes(s, b, fakeDB{online: true})
	return s, b
}

func TestStatusAndHealth(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = get(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	db := body["database"].(map[string]interface{})
	assert.Equal(t, true, db["isOnline"])
	stats := db["stats"].(map[string]interface{})
	assert.EqualValues(t, 4, stats["cachedDocuments"])
	assert.EqualValues(t, 2, stats["pendingWrites"])
	assert.EqualValues(t, 1, stats["blacklistedUsers"])
	assert.Equal(t, false, body["bot"].(map[string]interface{})["isOnline"])
}

func TestBotInfoOffline(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := get(t, s, "/api/bot")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Bot Offline", body["error"])
}

func TestModules(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := get(t, s, "/api/modules")
	require.Equal(t, http.StatusOK, code)

	modules := body["modules"].([]interface{})
	require.Len(t, modules, 1)
	mod := modules[0].(map[string]interface{})
	assert.Equal(t, "debug", mod["name"])
	cmd := mod["commands"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ping", cmd["name"])
	assert.Equal(t, []interface{}{"p"}, cmd["aliases"])
}

func TestNotFoundAndRateLimit(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not Found", body["error"])

	get(t, s, "/api/health")
	get(t, s, "/api/health")
	code, _ = get(t, s, "/api/health")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := NewServer("", RateLimitConfig{})
	assert.NoError(t, s.Shutdown(context.Background()))
}
