package game

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"aviator-client/internal/config"
	"aviator-client/internal/protocol"
	"aviator-client/internal/rest"
	"aviator-client/internal/transport"
)

const recentCashoutCap = 10

// Transport is the duplex socket the client rides on.
type Transport interface {
	Connect() error
	Disconnect()
	Send(data []byte) error
	Status() transport.Status
	Frames() <-chan []byte
	States() <-chan transport.StateChange
	LastServerSync() time.Time
}

// API is the REST collaborator surface.
type API interface {
	CreateRound() (rest.CreateRoundResponse, error)
	PlaceBet(userID int64, amount float64, roundID int64, autoCashout float64) (rest.PlaceBetResponse, error)
	Cashout(userID, betID int64, multiplier float64) (rest.CashoutResponse, error)
	Balance(userID int64) (float64, error)
	History() ([]float64, error)
	TopWinners() ([]rest.Winner, error)
}

// Client is the game-state synchronization client and bet-lifecycle
// coordinator. The server is the sole source of truth: the client mutates
// its state only on confirmed server messages or successful REST responses,
// never on local intent.
type Client struct {
	cfg  config.Config
	conn Transport
	api  API

	machine    *Machine
	ledger     *Ledger
	history    *History
	correlator *Correlator

	mu          sync.RWMutex
	balances    map[int64]float64
	recent      []RecentCashout
	livePlayers int
	lastResync  time.Time

	notifications chan Notification
	done          chan struct{}
	stopOnce      sync.Once
}

func NewClient(cfg config.Config, conn Transport, api API) *Client {
	return &Client{
		cfg:           cfg,
		conn:          conn,
		api:           api,
		machine:       NewMachine(),
		ledger:        NewLedger(),
		history:       NewHistory(cfg.HistorySize),
		correlator:    NewCorrelator(cfg.CashoutTimeout),
		balances:      make(map[int64]float64),
		notifications: make(chan Notification, 32),
		done:          make(chan struct{}),
	}
}

// Start seeds the crash history, opens the socket, and begins dispatching.
func (c *Client) Start() error {
	if snapshot, err := c.api.History(); err != nil {
		log.Printf("[GAME] History seed failed: %v", err)
	} else {
		c.history.Seed(snapshot)
	}

	if err := c.conn.Connect(); err != nil {
		return err
	}

	go c.run()
	return nil
}

// Stop tears the client down: socket closed with a normal-closure code,
// timers released, pending cashouts settled with ErrStopped.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.conn.Disconnect()
		c.correlator.FailAll(ErrStopped)
	})
}

// Notifications delivers UI-facing events (crash banners, connection
// toasts). Best effort: a slow reader drops events, never state.
func (c *Client) Notifications() <-chan Notification { return c.notifications }

func (c *Client) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.conn.Frames():
			c.handleFrame(frame)

		case change := <-c.conn.States():
			c.handleStateChange(change)

		case <-ticker.C:
			c.machine.TickCountdown()
			c.checkStaleness()

		case <-c.done:
			return
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("[GAME] Dropping frame: %v", err)
		return
	}

	switch ev := ev.(type) {
	case protocol.BettingOpen:
		c.machine.ApplyBettingOpen(ev)
		c.ledger.Clear()
		c.mu.Lock()
		c.recent = nil
		c.livePlayers = 0
		c.mu.Unlock()

	case protocol.RoundStarted:
		c.machine.ApplyRoundStarted(ev)

	case protocol.MultiplierUpdate:
		if c.machine.ApplyMultiplier(ev) {
			c.mu.Lock()
			c.livePlayers = c.ledger.Size()
			c.mu.Unlock()
		}

	case protocol.Crash:
		c.machine.ApplyCrash(ev)
		c.history.Prepend(ev.Multiplier)
		c.ledger.Clear()
		c.mu.Lock()
		c.livePlayers = 0
		c.mu.Unlock()
		c.notify(Notification{
			Kind:       NotifyCrash,
			Message:    fmt.Sprintf("Crashed at %.2fx", ev.Multiplier),
			Multiplier: ev.Multiplier,
		})

	case protocol.GameState:
		c.machine.ApplySync(ev)

	case protocol.BetPlaced:
		c.ledger.AddBet(ev.UserID, BetInfo{
			ID:          ev.BetID,
			UserID:      ev.UserID,
			Amount:      ev.Amount,
			AutoCashout: ev.AutoCashout,
		})
		if ev.NewBalance != nil {
			c.setBalance(ev.UserID, *ev.NewBalance)
		}

	case protocol.CashOutSuccess:
		c.ledger.RemoveBet(ev.UserID)
		c.setBalance(ev.UserID, ev.NewBalance)
		res := CashoutResult{
			WinAmount:  ev.WinAmount,
			Multiplier: ev.Multiplier,
			NewBalance: ev.NewBalance,
		}
		if ev.RequestID != "" {
			c.correlator.Resolve(ev.RequestID, res)
		} else {
			c.correlator.ResolveUser(ev.UserID, res)
		}

	case protocol.CashOut:
		c.mu.Lock()
		c.recent = append([]RecentCashout{{
			Username:   ev.Username,
			Multiplier: ev.Multiplier,
			Amount:     ev.Amount,
			WinAmount:  ev.WinAmount,
		}}, c.recent...)
		if len(c.recent) > recentCashoutCap {
			c.recent = c.recent[:recentCashoutCap]
		}
		c.mu.Unlock()

	case protocol.BetError:
		c.notify(Notification{Kind: NotifyServerError, Message: ev.Message})

	case protocol.CashoutError:
		rejection := &ServerRejectionError{Message: ev.Message, ServerCrash: ev.ServerCrash}
		if ev.RequestID != "" {
			c.correlator.Resolve(ev.RequestID, CashoutResult{Err: rejection})
		} else {
			c.correlator.FailAll(rejection)
			c.notify(Notification{Kind: NotifyServerError, Message: ev.Message})
		}

	case protocol.Pong:
		// Liveness only; the transport already stamped the arrival.
	}
}

func (c *Client) handleStateChange(change transport.StateChange) {
	if change.Terminal {
		c.notify(Notification{
			Kind:    NotifyRefreshRequired,
			Message: "Connection lost, please refresh",
		})
		return
	}
	if change.Status == transport.StatusConnecting && change.RetryCount > 0 {
		c.notify(Notification{
			Kind:    NotifyConnectionLost,
			Message: fmt.Sprintf("Reconnecting (attempt %d)", change.RetryCount),
		})
	}
}

// checkStaleness asks for an authoritative resync when the server has gone
// quiet for longer than the threshold.
func (c *Client) checkStaleness() {
	if c.conn.Status() != transport.StatusOpen {
		return
	}
	if time.Since(c.conn.LastServerSync()) < c.cfg.StaleAfter {
		return
	}

	c.mu.Lock()
	if time.Since(c.lastResync) < c.cfg.StaleAfter {
		c.mu.Unlock()
		return
	}
	c.lastResync = time.Now()
	c.mu.Unlock()

	log.Printf("[GAME] No server traffic for %v, requesting resync", c.cfg.StaleAfter)
	if frame, err := protocol.EncodeAction(protocol.GetGameStateAction{}); err == nil {
		c.conn.Send(frame)
	}
}

// PlaceBet validates the intent, reconciles the wallet against a freshly
// fetched balance, resolves a usable round id (creating one when absent),
// and submits the bet. A round-invalid rejection is retried exactly once
// with a newly created round.
func (c *Client) PlaceBet(userID int64, amount, autoCashout float64) (BetInfo, float64, error) {
	if c.conn.Status() != transport.StatusOpen {
		return BetInfo{}, 0, ErrNotConnected
	}
	if c.ledger.HasBet(userID) {
		return BetInfo{}, 0, &ValidationError{Reason: "a bet is already active this round"}
	}

	round := c.machine.Round()
	if round.Phase != PhaseBetting || round.BettingClosed {
		return BetInfo{}, 0, &ValidationError{Reason: "betting window is closed"}
	}
	if amount < c.cfg.MinStake || amount > c.cfg.MaxStake {
		return BetInfo{}, 0, &ValidationError{
			Reason: fmt.Sprintf("stake must be between %.2f and %.2f", c.cfg.MinStake, c.cfg.MaxStake),
		}
	}
	if autoCashout != 0 && autoCashout < MinCashoutMultiplier {
		return BetInfo{}, 0, &ValidationError{
			Reason: fmt.Sprintf("auto cashout must be at least %.2f", MinCashoutMultiplier),
		}
	}

	balance, err := c.RefreshBalance(userID)
	if err != nil {
		return BetInfo{}, 0, fmt.Errorf("game: balance check failed: %w", err)
	}
	if amount > balance {
		return BetInfo{}, balance, &InsufficientBalanceError{Balance: balance, Stake: amount}
	}

	roundID := round.ID
	if roundID == 0 {
		created, err := c.api.CreateRound()
		if err != nil {
			return BetInfo{}, balance, fmt.Errorf("game: round creation failed: %w", err)
		}
		roundID = created.RoundID
		c.machine.SetRoundID(roundID)
	}

	resp, err := c.api.PlaceBet(userID, amount, roundID, autoCashout)
	if err != nil {
		var invalid *rest.RoundInvalidError
		if errors.As(err, &invalid) {
			// Transient race against round rollover: recreate once, no loop.
			created, cerr := c.api.CreateRound()
			if cerr != nil {
				return BetInfo{}, balance, fmt.Errorf("game: round recreation failed: %w", cerr)
			}
			roundID = created.RoundID
			c.machine.SetRoundID(roundID)
			resp, err = c.api.PlaceBet(userID, amount, roundID, autoCashout)
		}
		if err != nil {
			if !isServerReported(err) {
				// The server may have partially applied the bet; recover the
				// authoritative balance instead of assuming nothing changed.
				if b, rerr := c.RefreshBalance(userID); rerr == nil {
					balance = b
				}
			}
			return BetInfo{}, balance, err
		}
	}

	c.setBalance(userID, resp.Balance)
	bet := BetInfo{ID: resp.BetID, UserID: userID, Amount: amount, AutoCashout: autoCashout}
	c.ledger.AddBet(userID, bet)
	log.Printf("[BET] User %d placed %.2f on round %d (bet %d)", userID, amount, roundID, resp.BetID)
	return bet, resp.Balance, nil
}

// CashOut sends a correlated cashout command and blocks until the server
// answers or the request times out. Precondition failures reject without a
// network round trip.
func (c *Client) CashOut(userID int64) (CashoutResult, error) {
	if err := c.cashoutPrecondition(userID); err != nil {
		return CashoutResult{Err: err}, err
	}

	bet, _ := c.ledger.GetBet(userID)
	observed := c.machine.Round().CurrentMultiplier

	requestID := uuid.NewString()
	resultCh := c.correlator.Register(requestID, userID, bet.ID)

	frame, err := protocol.EncodeAction(protocol.CashoutAction{
		RequestID:  requestID,
		BetID:      bet.ID,
		Multiplier: observed,
	})
	if err != nil {
		c.correlator.Evict(requestID)
		return CashoutResult{Err: err}, err
	}
	if err := c.conn.Send(frame); err != nil {
		c.correlator.Evict(requestID)
		return CashoutResult{Err: err}, err
	}

	res := <-resultCh
	if res.Err == nil {
		log.Printf("[CASHOUT] User %d won %.2f at %.2fx", userID, res.WinAmount, res.Multiplier)
	}
	return res, res.Err
}

// CashOutREST is the HTTP fallback path. The successful response is
// mirrored into the ledger so it stays the single source of truth
// regardless of transport.
func (c *Client) CashOutREST(userID int64) (CashoutResult, error) {
	if err := c.cashoutPrecondition(userID); err != nil {
		return CashoutResult{Err: err}, err
	}

	bet, _ := c.ledger.GetBet(userID)
	observed := c.machine.Round().CurrentMultiplier

	resp, err := c.api.Cashout(userID, bet.ID, observed)
	if err != nil {
		if !isServerReported(err) {
			c.RefreshBalance(userID)
		}
		return CashoutResult{Err: err}, err
	}

	c.ledger.RemoveBet(userID)
	c.setBalance(userID, resp.Balance)
	return CashoutResult{
		WinAmount:  resp.WinAmount,
		Multiplier: resp.Multiplier,
		NewBalance: resp.Balance,
	}, nil
}

// CanCashOut reports cashout eligibility: connected, flying, multiplier at
// least the floor, strictly below the known crash value, bet in the ledger.
func (c *Client) CanCashOut(userID int64) bool {
	return c.cashoutPrecondition(userID) == nil
}

func (c *Client) cashoutPrecondition(userID int64) error {
	if c.conn.Status() != transport.StatusOpen {
		return ErrNotConnected
	}
	if !c.ledger.HasBet(userID) {
		return &ValidationError{Reason: "no active bet"}
	}

	round := c.machine.Round()
	switch round.Phase {
	case PhaseCrashed:
		return &ValidationError{Reason: "round already crashed"}
	case PhaseBetting:
		return &ValidationError{Reason: "round not in flight"}
	}
	if round.CurrentMultiplier < MinCashoutMultiplier {
		return &ValidationError{Reason: "multiplier too low to cash out"}
	}
	if round.CrashMultiplier > 0 && round.CurrentMultiplier >= round.CrashMultiplier {
		return &ValidationError{Reason: "past the crash point"}
	}
	return nil
}

// RefreshBalance fetches the authoritative balance and caches it.
func (c *Client) RefreshBalance(userID int64) (float64, error) {
	balance, err := c.api.Balance(userID)
	if err != nil {
		return 0, err
	}
	c.setBalance(userID, balance)
	return balance, nil
}

func (c *Client) Balance(userID int64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[userID]
}

// PendingWinEstimate is stake × current multiplier, for display only. It is
// never written back into any state.
func (c *Client) PendingWinEstimate(userID int64) float64 {
	bet, ok := c.ledger.GetBet(userID)
	if !ok {
		return 0
	}
	return bet.Amount * c.machine.Round().CurrentMultiplier
}

func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	live := c.livePlayers
	c.mu.RUnlock()
	return Snapshot{Round: c.machine.Round(), LivePlayers: live}
}

func (c *Client) HasBet(userID int64) bool { return c.ledger.HasBet(userID) }

func (c *Client) Bet(userID int64) (BetInfo, bool) { return c.ledger.GetBet(userID) }

func (c *Client) History() []CrashRecord { return c.history.Records() }

func (c *Client) RecentCashouts() []RecentCashout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RecentCashout, len(c.recent))
	copy(out, c.recent)
	return out
}

func (c *Client) TopWinners() ([]rest.Winner, error) { return c.api.TopWinners() }

func (c *Client) ConnectionStatus() transport.Status { return c.conn.Status() }

func (c *Client) setBalance(userID int64, balance float64) {
	c.mu.Lock()
	c.balances[userID] = balance
	c.mu.Unlock()
}

func (c *Client) notify(n Notification) {
	select {
	case c.notifications <- n:
	default:
	}
}

// isServerReported distinguishes an answered-and-rejected request from a
// transport failure where the server's outcome is unknown.
func isServerReported(err error) bool {
	var apiErr *rest.APIError
	var invalid *rest.RoundInvalidError
	var insufficient *rest.InsufficientBalanceError
	return errors.As(err, &apiErr) || errors.As(err, &invalid) || errors.As(err, &insufficient)
}
