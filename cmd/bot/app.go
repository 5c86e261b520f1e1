package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nk521/Complaint-Bot/internal/modules"
	"github.com/nk521/Complaint-Bot/internal/modules/audit"
	"github.com/nk521/Complaint-Bot/internal/modules/complaint"
	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/config"
	"github.com/nk521/Complaint-Bot/pkg/database"
	errs "github.com/nk521/Complaint-Bot/pkg/errors"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/mqtt"
	"github.com/nk521/Complaint-Bot/pkg/transport"
	"github.com/nk521/Complaint-Bot/pkg/transport/discord"
	"github.com/nk521/Complaint-Bot/pkg/transport/telegram"
	"github.com/nk521/Complaint-Bot/pkg/web"
)

var _ complaint.Store = (*database.ComplaintStore)(nil)

const (
	blacklistRefresh = 5 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

// app holds every long-lived component of the process
type app struct {
	boot       *config.Bootstrap
	config     *config.Store
	log        *logger.Logger
	errors     *errs.Handler
	db         *database.Database
	complaints *database.ComplaintStore
	mqtt       *mqtt.Publisher
	web        *web.Server
	bot        *bot.Bot

	shutdownOnce sync.Once
}

func newApp(ctx context.Context, boot *config.Bootstrap) (*app, error) {
	fsys := afero.NewOsFs()
	store, created, err := loadConfig(fsys, boot.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := store.Get()

	a := &app{boot: boot, config: store}
	a.log = logger.Init(boot.LogDir, cfg.Logging.ErrorWebhook, cfg.Logging.LogsWebhook)
	logger.System(fmt.Sprintf("Starting Complaint-Bot %s (%s)", config.Version, boot.Environment), "Main")
	logger.Info(fmt.Sprintf("Working directory: %s", currentDir()), "Main")

	if created {
		if err := store.Save(); err != nil {
			return nil, err
		}
		logger.Warn(fmt.Sprintf("No configuration found, wrote defaults to %s", boot.ConfigPath), "Main")
	}

	a.errors = errs.Init(errs.Options{
		WebhookURL:   cfg.Logging.ErrorWebhook,
		ShutdownFunc: func() { a.shutdown(context.Background()) },
	})

	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	a.db = database.New(cfg.Database.MongoDBURL, cfg.Database.Name)
	if err := a.db.Connect(ctx); err != nil {
		// Connect keeps retrying in the background
		logger.Error(fmt.Sprintf("Error connecting to database: %v", err), "Main")
	}

	a.complaints = database.NewComplaintStore(a.db)
	blacklist := a.complaints.Blacklist()
	if err := blacklist.Refresh(ctx); err != nil {
		logger.Warn(fmt.Sprintf("Could not load the blacklist: %v", err), "Main")
	}
	blacklist.StartAutoRefresh(blacklistRefresh)

	deps := modules.Deps{Store: a.complaints, Pinger: a.db}
	if cfg.MQTT.Host != "" {
		a.mqtt = mqtt.Connect(mqtt.Options{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Password,
			ClientID: mqttClientID(boot),
			Topic:    cfg.MQTT.Topic,
		})
		deps.Publisher = audit.Publisher(a.mqtt)
	}

	manifest, err := modules.LoadManifest(fsys, cfg.Bot.ModulesManifest)
	if err != nil {
		return nil, err
	}

	a.bot = bot.New(t, store,
		bot.WithModules(manifest.Apply(modules.All(deps))...),
		bot.WithErrorHandler(a.errors),
		bot.WithGuard(blacklistGuard(blacklist)),
	)

	if cfg.Web.Port != "" {
		a.web = web.NewServer(cfg.Logging.LogsWebhook, web.RateLimitConfig{Window: time.Minute, MaxRequests: 100})
		web.SetupAPIRoutes(a.web, a.bot, a.complaints)
		a.web.StartAsync(cfg.Web.Port)
	}
	return a, nil
}

// run starts the bot and blocks until ctx is cancelled
func (a *app) run(ctx context.Context) error {
	defer a.shutdown(context.WithoutCancel(ctx))

	if err := a.bot.Start(ctx); err != nil {
		logger.Critical(fmt.Sprintf("Error starting the bot: %v", err), "Main")
		return err
	}

	if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(fmt.Sprintf("Transport stopped: %v", err), "Main")
		return err
	}
	logger.System("Shutting down Complaint-Bot...", "Main")
	return nil
}

func (a *app) shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if a.bot != nil {
			if err := a.bot.Stop(ctx); err != nil {
				logger.Error(fmt.Sprintf("Error stopping the bot: %v", err), "Main")
			}
		}
		if a.web != nil {
			if err := a.web.Shutdown(ctx); err != nil {
				logger.Error(fmt.Sprintf("Error stopping the web server: %v", err), "Main")
			}
		}
		if a.mqtt != nil {
			a.mqtt.Close()
		}
		if a.complaints != nil {
			a.complaints.Blacklist().StopAutoRefresh()
		}
		if a.db != nil {
			if err := a.db.Disconnect(ctx); err != nil {
				logger.Error(fmt.Sprintf("Error disconnecting from database: %v", err), "Main")
			}
		}
		if a.errors != nil {
			a.errors.Stop()
		}
		logger.System("Goodbye", "Main")
		if a.log != nil {
			a.log.Close()
		}
	})
}

// loadConfig opens the configuration file, falling back to defaults when it does not exist yet
func loadConfig(fsys afero.Fs, path string) (*config.Store, bool, error) {
	store, err := config.Load(fsys, path)
	if err == nil {
		return store, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	store, err = config.NewStore(fsys, path, config.Default())
	return store, true, err
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Bot.Transport {
	case config.TransportTelegram:
		if cfg.Telegram.BotKey == "" {
			return nil, errors.New("telegram.bot_key is not set")
		}
		return telegram.New(cfg.Telegram.BotKey), nil
	case config.TransportDiscord:
		if cfg.Discord.Token == "" {
			return nil, errors.New("discord.token is not set")
		}
		d, err := discord.New(cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Bot.Transport)
	}
}

func blacklistGuard(bl *database.Blacklist) bot.Guard {
	return func(ctx context.Context, msg *transport.Message) bool {
		if u, ok := bl.Get(msg.Sender.ID); ok {
			logger.Debug(fmt.Sprintf("Ignoring command from blacklisted user %s (%s)", u.ID, u.Reason), "Guard")
			return false
		}
		return true
	}
}

func mqttClientID(boot *config.Bootstrap) string {
	if boot.IsProd() {
		return "complaintbot"
	}
	return "complaintbot_canary"
}

func currentDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return dir
}
