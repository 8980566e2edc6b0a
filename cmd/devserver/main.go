package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"sisi-realtime/internal/broker"
	"sisi-realtime/internal/config"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/server"
	"sisi-realtime/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)
	st := store.New()
	wsHub := hub.New()

	var fanout hub.Fanout = wsHub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis %s: %v", cfg.RedisAddr, err)
		}
		defer rdb.Close()

		relay := broker.NewRelay(rdb, wsHub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("relay stopped: %v", err)
			}
		}()
		fanout = relay
		log.Printf("relaying through redis at %s", cfg.RedisAddr)
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: server.TokenConfig(cfg),
		Hub:         wsHub,
		Fanout:      fanout,
	})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	if err := server.Run(ctx, cfg, router); err != nil {
		log.Fatal(err)
	}
}
