package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nearprop/chat/internal/api/handler"
	"nearprop/chat/internal/chat"
	"nearprop/chat/internal/config"
	"nearprop/chat/internal/events"
	"nearprop/chat/internal/gateway"
	"nearprop/chat/internal/localization"
	"nearprop/chat/internal/notify"
	"nearprop/chat/internal/realtime"
	"nearprop/chat/internal/session"
	"nearprop/chat/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// setupStorage opens the local mirror and picks where the session lives.
func setupStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Service, storage.KV) {
	db, err := storage.Open(cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if cfg.SessionBackend != "redis" {
		log.Println("Storage ready, session kept in the database.")
		return db, db
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}
	log.Println("Storage ready, session kept in Redis.")
	return db, storage.NewRedisKV(rdb, "")
}

func setupNotifier(cfg config.NotifyConfig, loc *localization.Localizer, lang string) chat.Notifier {
	var notifiers notify.Multi
	if cfg.Bell {
		notifiers = append(notifiers, notify.Bell{Out: os.Stdout})
	}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, loc.GetString(lang, "notify.new_message"))
		if err != nil {
			log.Printf("WARNING: Telegram notifications disabled: %v", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func main() {
	log.Println("Starting NearProp chat client...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	loc, err := localization.New()
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage and session
	db, kv := setupStorage(ctx, cfg.Storage)
	sessions := session.NewStore(kv, clockwork.NewRealClock())
	sessions.SetCache(db)

	// 2. Backend, broker and notifications
	gw := gateway.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sessions)
	hub := events.NewHub()
	channel := realtime.NewChannel(realtime.NewStompDialer(cfg.Broker.URL), realtime.Options{})
	channel.OnStateChange(func(s realtime.State) {
		log.Printf("INFO: Broker %s", s)
		hub.Publish(events.Update{State: s.String(), At: time.Now()})
	})

	ctrl := chat.NewController(gw, channel, sessions, chat.Options{
		PageSize: cfg.API.PageSize,
		Mirror:   db,
		Notifier: setupNotifier(cfg.Notify, loc, cfg.Language),
	})
	ctrl.OnUpdate(func(roomID int64) {
		hub.Publish(events.Update{RoomID: roomID, State: ctrl.ConnectionState().String(), At: time.Now()})
	})

	// 3. Background goroutines
	go hub.Run(ctx)
	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, chat.ErrLoginRequired) {
			log.Println("No saved session, running as guest. Log in with the admin CLI.")
		} else {
			log.Printf("WARNING: Chat start incomplete: %v", err)
		}
	}

	// 4. Local control API
	r := gin.Default()
	h := handler.NewHandler(ctrl, loc, cfg.Language)
	h.Events = hub.ServeWS
	h.Register(r)

	server := &http.Server{
		Addr:           cfg.Listen,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Printf("Control API listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
	ctrl.Stop()
	<-hub.Done()
}
