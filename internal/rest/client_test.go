package rest

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

// newTestAPI serves canned handlers on a loopback listener and returns the
// base URL.
func newTestAPI(t *testing.T, register func(api fiber.Router)) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app.Group("/api/v1"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "http://" + ln.Addr().String() + "/api/v1"
}

func newTestClient(t *testing.T, register func(api fiber.Router)) *Client {
	return NewClient(newTestAPI(t, register), 2*time.Second)
}

func TestClient_CreateRound(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/rounds", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"round_id": 7})
		})
	})

	resp, err := client.CreateRound()
	if err != nil {
		t.Fatalf("CreateRound() error: %v", err)
	}
	if resp.RoundID != 7 {
		t.Errorf("RoundID = %d, want 7", resp.RoundID)
	}
}

func TestClient_PlaceBet(t *testing.T) {
	var seen struct {
		UserID      int64   `json:"user_id"`
		RoundID     int64   `json:"round_id"`
		Amount      float64 `json:"amount"`
		AutoCashout float64 `json:"auto_cashout"`
	}

	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/game/bet", func(c *fiber.Ctx) error {
			if err := c.BodyParser(&seen); err != nil {
				return c.Status(400).JSON(fiber.Map{"message": "bad body"})
			}
			return c.JSON(fiber.Map{"bet_id": 55, "balance": 900.0})
		})
	})

	resp, err := client.PlaceBet(1, 100.0, 7, 2.5)
	if err != nil {
		t.Fatalf("PlaceBet() error: %v", err)
	}
	if resp.BetID != 55 || resp.Balance != 900.0 {
		t.Errorf("PlaceBet() = %+v, want bet 55 balance 900", resp)
	}
	if seen.UserID != 1 || seen.RoundID != 7 || seen.Amount != 100.0 || seen.AutoCashout != 2.5 {
		t.Errorf("request body = %+v", seen)
	}
}

func TestClient_PlaceBet_RoundInactive(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/game/bet", func(c *fiber.Ctx) error {
			return c.Status(400).JSON(fiber.Map{
				"code":    "round_inactive",
				"message": "Round is not accepting bets",
			})
		})
	})

	_, err := client.PlaceBet(1, 100.0, 7, 0)

	var roundErr *RoundInvalidError
	if !errors.As(err, &roundErr) {
		t.Fatalf("error = %v, want *RoundInvalidError", err)
	}
	if roundErr.Message != "Round is not accepting bets" {
		t.Errorf("Message = %q", roundErr.Message)
	}
}

func TestClient_PlaceBet_InsufficientBalance(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/game/bet", func(c *fiber.Ctx) error {
			return c.Status(400).JSON(fiber.Map{
				"code":    "insufficient_balance",
				"message": "Insufficient balance",
				"balance": 40.0,
			})
		})
	})

	_, err := client.PlaceBet(1, 100.0, 7, 0)

	var balErr *InsufficientBalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("error = %v, want *InsufficientBalanceError", err)
	}
	if balErr.Balance != 40.0 {
		t.Errorf("Balance = %v, want 40.0", balErr.Balance)
	}
}

func TestClient_Cashout(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/game/cashout", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"win_amount": 200.0, "balance": 1100.0, "multiplier": 2.0})
		})
	})

	resp, err := client.Cashout(1, 55, 2.0)
	if err != nil {
		t.Fatalf("Cashout() error: %v", err)
	}
	if resp.WinAmount != 200.0 || resp.Balance != 1100.0 || resp.Multiplier != 2.0 {
		t.Errorf("Cashout() = %+v", resp)
	}
}

func TestClient_Balance(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Get("/user/:userId/balance", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"user_id": 1, "balance": 512.25})
		})
	})

	balance, err := client.Balance(1)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if balance != 512.25 {
		t.Errorf("Balance() = %v, want 512.25", balance)
	}
}

func TestClient_History(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Get("/history", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"multipliers": []float64{2.47, 1.03, 10.51}})
		})
	})

	got, err := client.History()
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(got) != 3 || got[0] != 2.47 {
		t.Errorf("History() = %v", got)
	}
}

func TestClient_TopWinners(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Get("/winners", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"winners": []fiber.Map{
				{"username": "player-102", "total_win": 200.0},
			}})
		})
	})

	winners, err := client.TopWinners()
	if err != nil {
		t.Fatalf("TopWinners() error: %v", err)
	}
	if len(winners) != 1 || winners[0].Username != "player-102" || winners[0].TotalWin != 200.0 {
		t.Errorf("TopWinners() = %+v", winners)
	}
}

func TestClient_GenericError(t *testing.T) {
	client := newTestClient(t, func(api fiber.Router) {
		api.Post("/rounds", func(c *fiber.Ctx) error {
			return c.Status(503).JSON(fiber.Map{"code": "no_round", "message": "try later"})
		})
	})

	_, err := client.CreateRound()

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != 503 || apiErr.Code != "no_round" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
