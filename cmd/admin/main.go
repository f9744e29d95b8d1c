package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"nearprop/chat/internal/config"
	"nearprop/chat/internal/gateway"
	"nearprop/chat/internal/localization"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/session"
	"nearprop/chat/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

  login <mobile>        log in with a one-time password
  token <jwt> [name]    log in with an already issued token
  logout                forget the saved session
  whoami                show the saved session
  rooms                 list conversations`

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	loc, err := localization.New()
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}
	text := func(key string) string { return loc.GetString(cfg.Language, key) }

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx := context.Background()
	db, kv := openStorage(ctx, cfg.Storage)
	sessions := session.NewStore(kv, clockwork.NewRealClock())
	sessions.SetCache(db)
	gw := gateway.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sessions)

	switch os.Args[1] {
	case "login":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin login <mobile>")
			os.Exit(1)
		}
		sess, err := login(ctx, gw, os.Args[2], text("cli.otp_prompt"))
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		if err := sessions.Save(ctx, sess); err != nil {
			log.Fatalf("Failed to save session: %v", err)
		}
		fmt.Printf(text("cli.logged_in")+"\n", displayName(sess))
	case "token":
		if len(os.Args) < 3 || len(os.Args) > 4 {
			fmt.Println("Usage: admin token <jwt> [name]")
			os.Exit(1)
		}
		name := ""
		if len(os.Args) == 4 {
			name = os.Args[3]
		}
		sess, err := session.FromToken(os.Args[2], name)
		if err != nil {
			log.Fatalf("Invalid token: %v", err)
		}
		if err := sessions.Save(ctx, sess); err != nil {
			log.Fatalf("Failed to save session: %v", err)
		}
		fmt.Printf(text("cli.logged_in")+"\n", displayName(sess))
	case "logout":
		if err := sessions.Clear(ctx); err != nil {
			log.Fatalf("Failed to clear session: %v", err)
		}
		fmt.Println(text("cli.logged_out"))
	case "whoami":
		sess, err := sessions.Current(ctx)
		if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrExpired) {
			fmt.Println(text("cli.guest"))
			return
		}
		if err != nil {
			log.Fatalf("Failed to read session: %v", err)
		}
		fmt.Printf("%s (user %d, %s)\n", displayName(sess), sess.UserID, sess.Role)
		if !sess.ExpiresAt.IsZero() {
			fmt.Printf("expires %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
	case "rooms":
		rooms, err := gw.ListRooms(ctx)
		if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrExpired) {
			fmt.Println(text("cli.guest"))
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Failed to list rooms: %v", err)
		}
		if len(rooms) == 0 {
			fmt.Println(text("cli.no_rooms"))
			return
		}
		for _, r := range rooms {
			fmt.Printf("%6d  %-20s  property %-6d  %d unread  %s\n",
				r.ID, r.CounterpartName, r.PropertyID, r.UnreadCount, r.LastMessage)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

// openStorage opens the chat cache, which login and logout purge, and the
// session backend.
func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Service, storage.KV) {
	db, err := storage.Open(cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if cfg.SessionBackend != "redis" {
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
	return db, storage.NewRedisKV(rdb, "")
}

func login(ctx context.Context, gw *gateway.Client, mobile, prompt string) (*models.Session, error) {
	if err := gw.RequestOTP(ctx, mobile); err != nil {
		return nil, err
	}
	fmt.Printf(prompt, mobile)

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && code == "" {
		return nil, fmt.Errorf("read otp: %w", err)
	}
	return gw.VerifyOTP(ctx, mobile, strings.TrimSpace(code))
}

func displayName(sess *models.Session) string {
	if sess.DisplayName != "" {
		return sess.DisplayName
	}
	return fmt.Sprintf("user %d", sess.UserID)
}
