// Command client is a headless chat client. It logs in, keeps the realtime
// session alive and prints state changes and notices until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"sisi-realtime/internal/api"
	"sisi-realtime/internal/config"
	"sisi-realtime/internal/deeplink"
	"sisi-realtime/internal/engine"
	"sisi-realtime/internal/notice"
	"sisi-realtime/internal/transport"
)

func main() {
	link := flag.String("link", "", "page URL carrying an add-friend token to redeem after login")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, *link, logger); err != nil {
		logger.Fatal("client stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func run(cfg config.ClientConfig, link string, logger *zap.Logger) error {
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("SISI_USERNAME and SISI_PASSWORD are required")
	}
	policy, err := transport.ParseSendPolicy(cfg.SendPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.BackendURL, &http.Client{})
	conn := transport.New(transport.Options{
		BaseURL:         cfg.BackendURL,
		ReconnectDelay:  cfg.ReconnectDelay,
		ReconnectJitter: cfg.ReconnectJitter,
		SendPolicy:      policy,
		Logger:          logger,
	})

	var loc deeplink.Location
	if link != "" {
		loc = deeplink.NewStaticLocation(link)
	}

	eng := engine.New(engine.Options{
		Backend:   client,
		Transport: conn,
		Notices: notice.Func(func(n notice.Notice) {
			fmt.Printf("[%s] %s\n", n.Level, n.Text)
		}),
		Location:     loc,
		TypingWindow: cfg.TypingExpiry,
		Logger:       logger,
	})
	defer eng.Close()

	user, err := eng.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("login: %s", api.Detail(err, err.Error()))
	}
	logger.Info("logged in", zap.String("user_id", user.ID), zap.String("username", user.Username))

	updates, unsubscribe, err := eng.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return eng.Logout()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(snap)
		}
	}
}

func printSnapshot(s engine.Snapshot) {
	fmt.Printf("connection=%s retries=%d chats=%d unread=%d friends=%d\n",
		s.Connection.State, s.Connection.RetryCount, len(s.Chat.Chats), s.UnreadCount, len(s.Friends))
	if s.Chat.OpenChatID != "" {
		fmt.Printf("  open chat %s: %d messages, typing=%v\n", s.Chat.OpenChatID, len(s.Chat.Messages), s.Chat.Typing)
	}
}
