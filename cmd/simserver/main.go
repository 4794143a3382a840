package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"aviator-client/internal/sim"
)

func main() {
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("AVIATOR_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("AVIATOR_REDIS_PASSWORD", ""),
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("[SIM] Redis is required: %v", err)
	}

	// Postgres is optional; without it the winners feed is empty.
	var store *sim.Store
	if dbURL := os.Getenv("AVIATOR_DB_URL"); dbURL != "" {
		var err error
		store, err = sim.NewStore(context.Background(), dbURL)
		if err != nil {
			log.Fatalf("[SIM] Postgres: %v", err)
		}
		defer store.Close()
	} else {
		log.Println("[SIM] AVIATOR_DB_URL not set, winners feed disabled")
	}

	hub := sim.NewHub()
	engine := sim.NewEngine(hub, rdb, store)
	server := sim.NewServer(hub, engine, store)

	go hub.Run()
	engine.Start()

	port := getEnv("AVIATOR_SIM_PORT", "8080")
	go func() {
		if err := server.Listen(":" + port); err != nil {
			log.Fatalf("[SIM] Listen: %v", err)
		}
	}()
	log.Printf("[SIM] Listening on :%s", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[SIM] Shutting down...")
	engine.Stop()
	if err := server.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("[SIM] Shutdown: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("[SIM] Redis close: %v", err)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
