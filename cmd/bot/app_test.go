package main

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/database"
	"github.com/nk521/Complaint-Bot/pkg/models"
	"github.com/nk521/Complaint-Bot/pkg/transport/discord"
	"github.com/nk521/Complaint-Bot/pkg/transport/telegram"
	"github.com/nk521/Complaint-Bot/pkg/transport/transporttest"
)

func TestLoadConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()

	store, created, err := loadConfig(fsys, "config.toml")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "/", store.Get().Bot.Prefix)

	require.NoError(t, afero.WriteFile(fsys, "config.toml", []byte("[bot]\nprefix = \"!\"\n"), 0o644))
	store, created, err = loadConfig(fsys, "config.toml")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "!", store.Get().Bot.Prefix)

	require.NoError(t, afero.WriteFile(fsys, "broken.toml", []byte("[bot\n"), 0o644))
	_, _, err = loadConfig(fsys, "broken.toml")
	assert.Error(t, err)
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default()

	_, err := newTransport(cfg)
	assert.ErrorContains(t, err, "telegram.bot_key")

	cfg.Telegram.BotKey = "1:abc"
	tr, err := newTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &telegram.Adapter{}, tr)

	cfg.Bot.Transport = config.TransportDiscord
	_, err = newTransport(cfg)
	assert.ErrorContains(t, err, "discord.token")

	cfg.Discord.Token = "token"
	tr, err = newTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &discord.Adapter{}, tr)

	cfg.Bot.Transport = "irc"
	_, err = newTransport(cfg)
	assert.ErrorContains(t, err, `unknown transport "irc"`)
}

func TestBlacklistGuard(t *testing.T) {
	users := database.NewDataManager[models.User](database.UsersCollection, database.New("mongodb://localhost:1", "test"))
	bl := database.NewBlacklist(users)
	bl.Add(&models.User{ID: "9", IsBlacklisted: true})

	guard := blacklistGuard(bl)
	assert.False(t, guard(context.Background(), transporttest.Message("9", "/list")))
	assert.True(t, guard(context.Background(), transporttest.Message("8", "/list")))
}

func TestMQTTClientID(t *testing.T) {
	assert.Equal(t, "complaintbot", mqttClientID(&config.Bootstrap{Environment: "prod"}))
	assert.Equal(t, "complaintbot_canary", mqttClientID(&config.Bootstrap{Environment: "dev"}))
}
