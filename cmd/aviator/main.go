package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"aviator-client/internal/config"
	"aviator-client/internal/game"
	"aviator-client/internal/rest"
	"aviator-client/internal/transport"
)

// Demo runner: connects to the game backend, mirrors live state, and prints
// round snapshots plus any notifications until interrupted.
func main() {
	cfg := config.Load()

	userID, _ := strconv.ParseInt(getEnv("AVIATOR_USER_ID", "1"), 10, 64)

	api := rest.NewClient(cfg.APIBaseURL, 5*time.Second)
	conn := transport.NewConn(cfg.SocketURL, transport.RetryPolicy{
		MaxAttempts: cfg.MaxReconnects,
		Delay:       cfg.ReconnectDelay,
	}, cfg.PingInterval)

	client := game.NewClient(cfg, conn, api)
	if err := client.Start(); err != nil {
		log.Fatalf("[CLIENT] Start: %v", err)
	}
	defer client.Stop()

	log.Printf("[CLIENT] Connected to %s as user %d", cfg.SocketURL, userID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case n := <-client.Notifications():
			switch n.Kind {
			case game.NotifyCrash:
				log.Printf("[CLIENT] Round crashed at %.2fx", n.Multiplier)
			case game.NotifyConnectionLost:
				log.Printf("[CLIENT] Connection lost, reconnecting: %s", n.Message)
			case game.NotifyRefreshRequired:
				log.Printf("[CLIENT] Connection gone for good: %s", n.Message)
			case game.NotifyServerError:
				log.Printf("[CLIENT] Server error: %s", n.Message)
			}

		case <-ticker.C:
			snap := client.Snapshot()
			log.Printf("[CLIENT] round=%d phase=%s multiplier=%.2fx players=%d balance=%.2f",
				snap.Round.ID, snap.Round.Phase, snap.Round.CurrentMultiplier,
				snap.LivePlayers, client.Balance(userID))

		case <-quit:
			log.Println("[CLIENT] Shutting down...")
			return
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
