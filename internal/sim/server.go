package sim

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"aviator-client/internal/protocol"
)

// Server exposes the simulated backend: the REST surface the client's API
// layer talks to, and the /ws feed its transport subscribes to.
type Server struct {
	*fiber.App

	hub    *Hub
	engine *Engine
	store  *Store
}

func NewServer(hub *Hub, engine *Engine, store *Store) *Server {
	s := &Server{
		App: fiber.New(fiber.Config{
			ServerHeader: "aviator-sim",
			AppName:      "aviator-sim",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}),
		hub:    hub,
		engine: engine,
		store:  store,
	}

	s.App.Use(recover.New())
	s.App.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Accept,Authorization,Content-Type",
		MaxAge:       300,
	}))
	s.App.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: 1 * time.Minute,
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Post("/rounds", s.createRoundHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Get("/user/:userId/balance", s.getBalanceHandler)
	api.Post("/user/:userId/balance", s.setBalanceHandler)
	api.Get("/history", s.historyHandler)
	api.Get("/winners", s.winnersHandler)

	s.App.Get("/ws", websocket.New(s.wsHandler))
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":            "running",
		"connected_clients": s.hub.SessionCount(),
	})
}

type betRequest struct {
	UserID      int64   `json:"user_id"`
	RoundID     int64   `json:"round_id"`
	Amount      float64 `json:"amount"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
}

type cashoutRequest struct {
	UserID     int64   `json:"user_id"`
	BetID      int64   `json:"bet_id"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

func (s *Server) createRoundHandler(c *fiber.Ctx) error {
	id, err := s.engine.WaitForBettingRound(c.Context())
	if err != nil {
		return c.Status(503).JSON(fiber.Map{
			"code":    "no_round",
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"round_id": id})
}

func (s *Server) placeBetHandler(c *fiber.Ctx) error {
	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid request body"})
	}
	if req.UserID == 0 {
		return c.Status(400).JSON(fiber.Map{"message": "user_id is required"})
	}

	betID, balance, err := s.engine.PlaceBet(req.UserID, req.Amount, req.RoundID, req.AutoCashout)
	if err != nil {
		return writeRequestError(c, err)
	}
	return c.JSON(fiber.Map{"bet_id": betID, "balance": balance})
}

func (s *Server) cashoutHandler(c *fiber.Ctx) error {
	var req cashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid request body"})
	}

	win, balance, mult, err := s.engine.Cashout(req.UserID, req.BetID)
	if err != nil {
		return writeRequestError(c, err)
	}
	return c.JSON(fiber.Map{"win_amount": win, "balance": balance, "multiplier": mult})
}

func (s *Server) getBalanceHandler(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid user id"})
	}

	balance, err := s.engine.Balance(userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"message": "Failed to read balance"})
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}

func (s *Server) setBalanceHandler(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid user id"})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid request body"})
	}
	if err := s.engine.SetBalance(userID, body.Balance); err != nil {
		return c.Status(500).JSON(fiber.Map{"message": "Failed to set balance"})
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": body.Balance})
}

func (s *Server) historyHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 16)
	multipliers, err := s.engine.History(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"message": "Failed to read history"})
	}
	return c.JSON(fiber.Map{"multipliers": multipliers})
}

func (s *Server) winnersHandler(c *fiber.Ctx) error {
	if s.store == nil {
		return c.JSON(fiber.Map{"winners": []fiber.Map{}})
	}

	rows, err := s.store.TopWinners(c.Context(), 10)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"message": "Failed to read winners"})
	}
	winners := make([]fiber.Map, 0, len(rows))
	for _, w := range rows {
		winners = append(winners, fiber.Map{"username": w.Username, "total_win": w.TotalWin})
	}
	return c.JSON(fiber.Map{"winners": winners})
}

func writeRequestError(c *fiber.Ctx, err error) error {
	if reqErr, ok := err.(*RequestError); ok {
		body := fiber.Map{"code": reqErr.Code, "message": reqErr.Message}
		if reqErr.Balance > 0 {
			body["balance"] = reqErr.Balance
		}
		return c.Status(400).JSON(body)
	}
	return c.Status(500).JSON(fiber.Map{"message": err.Error()})
}

// wsHandler runs the per-connection read loop. Events flow out through the
// hub; inbound actions are ping, resync, and correlated cashouts.
func (s *Server) wsHandler(conn *websocket.Conn) {
	userID, _ := strconv.ParseInt(conn.Query("user_id", "0"), 10, 64)
	log.Printf("[WS] New connection from user %d", userID)

	session := s.hub.Register(conn, userID)
	defer s.hub.Unregister(session)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %d: %v", userID, err)
			return
		}

		env, err := protocol.DecodeAction(raw)
		if err != nil {
			continue
		}

		switch env.Action {
		case protocol.ActionPing:
			session.Send(protocol.Pong{})
		case protocol.ActionGetGameState:
			session.Send(s.engine.GameState())
		case protocol.ActionCashout:
			s.handleWSCashout(session, env)
		default:
			log.Printf("[WS] Unknown action %q from user %d", env.Action, userID)
		}
	}
}

func (s *Server) handleWSCashout(session *Session, env protocol.ActionEnvelope) {
	win, balance, mult, err := s.engine.Cashout(session.userID, env.BetID)
	if err != nil {
		out := protocol.CashoutError{RequestID: env.RequestID, Message: err.Error()}
		if reqErr, ok := err.(*RequestError); ok {
			out.ServerCrash = reqErr.ServerCrash
		}
		session.Send(out)
		return
	}

	session.Send(protocol.CashOutSuccess{
		UserID:     session.userID,
		RequestID:  env.RequestID,
		NewBalance: balance,
		WinAmount:  win,
		Multiplier: mult,
	})
}
