package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"aviator-client/internal/protocol"
	"aviator-client/internal/rest"
)

const (
	tickInterval    = 100 * time.Millisecond
	bettingTime     = 5 * time.Second
	interRoundPause = 3 * time.Second
	minBetAmount    = 1.0
	maxBetAmount    = 10000.0
	historyCap      = 50

	redisKeyRoundPrefix = "crash:round:"
	redisKeyBetsPrefix  = "crash:bets:"
	redisKeyBalance     = "crash:balance:"
	redisKeyHistory     = "crash:history"
)

const (
	statusBetting = "BETTING"
	statusRunning = "RUNNING"
	statusCrashed = "CRASHED"
)

// RequestError is a rejected player request. Code feeds the REST error
// contract; ServerCrash marks cashouts that lost the race against the
// crash.
type RequestError struct {
	Code        string
	Message     string
	Balance     float64
	ServerCrash bool
}

func (e *RequestError) Error() string { return e.Message }

type roundState struct {
	ID         int64
	ServerSeed string
	Commitment string
	ClientSeed string
	Crash      float64
	Current    float64
	Status     string
	StartedAt  time.Time
}

type storedBet struct {
	BetID       int64   `json:"bet_id"`
	UserID      int64   `json:"user_id"`
	Amount      float64 `json:"amount"`
	AutoCashout float64 `json:"auto_cashout"`
	CashedOut   bool    `json:"cashed_out"`
}

// Engine runs the continuous round loop: betting window, flight, crash,
// pause, repeat. Player requests arrive concurrently from the REST and
// websocket handlers and synchronize on the state mutex.
type Engine struct {
	hub   *Hub
	rdb   *redis.Client
	store *Store // optional; nil disables the durable tail
	ctx   context.Context

	mu         sync.RWMutex
	round      *roundState
	bettingSig chan struct{}

	nonce    int
	roundSeq int64
	betSeq   int64

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewEngine(hub *Hub, rdb *redis.Client, store *Store) *Engine {
	return &Engine{
		hub:        hub,
		rdb:        rdb,
		store:      store,
		ctx:        context.Background(),
		bettingSig: make(chan struct{}),
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() {
	go e.gameLoop()
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}

func (e *Engine) gameLoop() {
	for {
		select {
		case <-e.stopChan:
			log.Println("[SIM] Game loop stopped")
			return
		default:
			e.runRound()
		}
	}
}

func (e *Engine) runRound() {
	e.nonce++
	e.roundSeq++

	serverSeed := NewSeed()
	clientSeed := NewSeed()
	crash := DeriveCrashPoint(serverSeed, clientSeed, e.nonce)

	e.mu.Lock()
	e.round = &roundState{
		ID:         e.roundSeq,
		ServerSeed: serverSeed,
		Commitment: Commitment(serverSeed),
		ClientSeed: clientSeed,
		Crash:      crash,
		Current:    1.0,
		Status:     statusBetting,
		StartedAt:  time.Now(),
	}
	roundID := e.round.ID
	sig := e.bettingSig
	e.bettingSig = make(chan struct{})
	e.persistRound(e.round)
	e.mu.Unlock()

	close(sig)

	log.Printf("[SIM] Round %d betting open (crash hidden at %.2fx)", roundID, crash)
	e.hub.Broadcast(protocol.BettingOpen{Countdown: int(bettingTime.Seconds())})

	if !e.sleep(bettingTime) {
		return
	}

	e.mu.Lock()
	e.round.Status = statusRunning
	e.round.StartedAt = time.Now()
	e.mu.Unlock()

	e.hub.Broadcast(protocol.RoundStarted{
		RoundID:         roundID,
		Multiplier:      1.0,
		CrashMultiplier: crash,
	})

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.tick(roundID, crash) {
				e.settleRound(roundID, crash)
				if !e.sleep(interRoundPause) {
					return
				}
				return
			}
		case <-e.stopChan:
			return
		}
	}
}

// tick advances the multiplier one step. Returns true once the round has
// crashed.
func (e *Engine) tick(roundID int64, crash float64) bool {
	e.mu.Lock()
	elapsed := time.Since(e.round.StartedAt).Seconds()
	current := growthCurve(elapsed)

	if current >= crash {
		e.round.Status = statusCrashed
		e.round.Current = crash
		e.mu.Unlock()

		log.Printf("[SIM] Round %d crashed at %.2fx", roundID, crash)
		e.hub.Broadcast(protocol.Crash{Multiplier: crash})
		return true
	}

	e.round.Current = current
	e.mu.Unlock()

	e.hub.Broadcast(protocol.MultiplierUpdate{Multiplier: current})
	e.runAutoCashouts(roundID, current)
	return false
}

// growthCurve maps elapsed flight seconds to a multiplier, rounded to two
// decimals.
func growthCurve(elapsed float64) float64 {
	m := 1.0 + (elapsed / 1.5) + (elapsed * elapsed * 0.005)
	return float64(int(m*100)) / 100.0
}

// PlaceBet validates and books a bet during the betting window. The new
// balance is deducted atomically in redis and the confirmation is
// broadcast so every client mirrors the same ledger entry.
func (e *Engine) PlaceBet(userID int64, amount float64, roundID int64, autoCashout float64) (int64, float64, error) {
	if amount < minBetAmount || amount > maxBetAmount {
		return 0, 0, &RequestError{
			Message: fmt.Sprintf("Bet must be between %.2f and %.2f", minBetAmount, maxBetAmount),
		}
	}

	e.mu.RLock()
	round := e.round
	if round == nil || round.Status != statusBetting || round.ID != roundID {
		e.mu.RUnlock()
		return 0, 0, &RequestError{Code: rest.CodeRoundInactive, Message: "Round is not accepting bets"}
	}
	e.mu.RUnlock()

	balanceKey := redisKeyBalance + strconv.FormatInt(userID, 10)
	balance, err := e.rdb.Get(e.ctx, balanceKey).Float64()
	if err != nil || balance < amount {
		return 0, 0, &RequestError{
			Code:    rest.CodeInsufficientBalance,
			Message: "Insufficient balance",
			Balance: balance,
		}
	}

	newBalance, err := e.rdb.IncrByFloat(e.ctx, balanceKey, -amount).Result()
	if err != nil || newBalance < 0 {
		e.rdb.IncrByFloat(e.ctx, balanceKey, amount) // rollback
		return 0, 0, &RequestError{Message: "Transaction failed"}
	}

	e.mu.Lock()
	e.betSeq++
	betID := e.betSeq
	e.mu.Unlock()

	bet := storedBet{
		BetID:       betID,
		UserID:      userID,
		Amount:      amount,
		AutoCashout: autoCashout,
	}
	betsKey := redisKeyBetsPrefix + strconv.FormatInt(roundID, 10)
	betJSON, _ := json.Marshal(bet)
	e.rdb.HSet(e.ctx, betsKey, strconv.FormatInt(betID, 10), betJSON)
	e.rdb.Expire(e.ctx, betsKey, 10*time.Minute)

	e.hub.Broadcast(protocol.BetPlaced{
		UserID:      userID,
		BetID:       betID,
		Amount:      amount,
		AutoCashout: autoCashout,
		NewBalance:  &newBalance,
	})

	log.Printf("[SIM] User %d bet %.2f on round %d (bet %d)", userID, amount, roundID, betID)
	return betID, newBalance, nil
}

// Cashout settles a bet at the server's current multiplier. The claimed
// multiplier from the client is advisory only; payout always uses server
// truth.
func (e *Engine) Cashout(userID, betID int64) (win, balance, multiplier float64, err error) {
	e.mu.RLock()
	round := e.round
	if round == nil || round.Status != statusRunning {
		crashed := round != nil && round.Status == statusCrashed
		e.mu.RUnlock()
		return 0, 0, 0, &RequestError{Message: "Cannot cash out now", ServerCrash: crashed}
	}
	current := round.Current
	roundID := round.ID
	e.mu.RUnlock()

	betsKey := redisKeyBetsPrefix + strconv.FormatInt(roundID, 10)
	betField := strconv.FormatInt(betID, 10)
	betJSON, err := e.rdb.HGet(e.ctx, betsKey, betField).Result()
	if err != nil {
		return 0, 0, 0, &RequestError{Message: "Bet not found"}
	}

	var bet storedBet
	if err := json.Unmarshal([]byte(betJSON), &bet); err != nil || bet.UserID != userID {
		return 0, 0, 0, &RequestError{Message: "Bet not found"}
	}
	if bet.CashedOut {
		return 0, 0, 0, &RequestError{Message: "Already cashed out"}
	}

	payout := bet.Amount * current
	balanceKey := redisKeyBalance + strconv.FormatInt(userID, 10)
	newBalance, err := e.rdb.IncrByFloat(e.ctx, balanceKey, payout).Result()
	if err != nil {
		return 0, 0, 0, &RequestError{Message: "Failed to credit balance"}
	}

	bet.CashedOut = true
	updated, _ := json.Marshal(bet)
	e.rdb.HSet(e.ctx, betsKey, betField, updated)

	e.hub.Broadcast(protocol.CashOut{
		Username:   username(userID),
		Multiplier: current,
		Amount:     bet.Amount,
		WinAmount:  payout,
	})

	if e.store != nil {
		go e.store.RecordWin(e.ctx, userID, username(userID), payout)
	}

	log.Printf("[SIM] User %d cashed out at %.2fx (payout %.2f)", userID, current, payout)
	return payout, newBalance, current, nil
}

func (e *Engine) runAutoCashouts(roundID int64, current float64) {
	betsKey := redisKeyBetsPrefix + strconv.FormatInt(roundID, 10)
	entries, err := e.rdb.HGetAll(e.ctx, betsKey).Result()
	if err != nil {
		return
	}

	for _, raw := range entries {
		var bet storedBet
		if json.Unmarshal([]byte(raw), &bet) != nil {
			continue
		}
		if bet.CashedOut || bet.AutoCashout <= 0 || current < bet.AutoCashout {
			continue
		}

		win, balance, mult, err := e.Cashout(bet.UserID, bet.BetID)
		if err != nil {
			continue
		}
		e.hub.Broadcast(protocol.CashOutSuccess{
			UserID:     bet.UserID,
			NewBalance: balance,
			WinAmount:  win,
			Multiplier: mult,
		})
	}
}

func (e *Engine) settleRound(roundID int64, crash float64) {
	e.rdb.LPush(e.ctx, redisKeyHistory, fmt.Sprintf("%.2f", crash))
	e.rdb.LTrim(e.ctx, redisKeyHistory, 0, historyCap-1)
	e.rdb.Del(e.ctx, redisKeyBetsPrefix+strconv.FormatInt(roundID, 10))

	if e.store != nil {
		e.mu.RLock()
		round := *e.round
		e.mu.RUnlock()
		nonce := e.nonce
		go func() {
			if err := e.store.RecordRound(e.ctx, round.ID, round.Crash, round.ServerSeed, round.Commitment, nonce); err != nil {
				log.Printf("[SIM] %v", err)
			}
		}()
	}
}

// WaitForBettingRound blocks until a round is accepting bets and returns
// its id. Serves the create-round endpoint: the loop runs continuously, so
// "creating" a round means joining the next betting window.
func (e *Engine) WaitForBettingRound(ctx context.Context) (int64, error) {
	for {
		e.mu.RLock()
		if e.round != nil && e.round.Status == statusBetting {
			id := e.round.ID
			e.mu.RUnlock()
			return id, nil
		}
		sig := e.bettingSig
		e.mu.RUnlock()

		select {
		case <-sig:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-e.stopChan:
			return 0, fmt.Errorf("sim: engine stopped")
		case <-time.After(15 * time.Second):
			return 0, fmt.Errorf("sim: no betting round within 15s")
		}
	}
}

// GameState snapshots the authoritative state for resync requests.
func (e *Engine) GameState() protocol.GameState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round == nil {
		return protocol.GameState{IsBetting: true, CurrentMultiplier: 1.0}
	}
	return protocol.GameState{
		RoundID:           e.round.ID,
		CurrentMultiplier: e.round.Current,
		CrashMultiplier:   e.round.Crash,
		IsActive:          e.round.Status == statusRunning,
		IsBetting:         e.round.Status == statusBetting,
		Crashed:           e.round.Status == statusCrashed,
	}
}

// History returns the most-recent-first crash multipliers.
func (e *Engine) History(limit int) ([]float64, error) {
	raw, err := e.rdb.LRange(e.ctx, redisKeyHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (e *Engine) Balance(userID int64) (float64, error) {
	balance, err := e.rdb.Get(e.ctx, redisKeyBalance+strconv.FormatInt(userID, 10)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return balance, err
}

func (e *Engine) SetBalance(userID int64, balance float64) error {
	return e.rdb.Set(e.ctx, redisKeyBalance+strconv.FormatInt(userID, 10), balance, 0).Err()
}

func (e *Engine) persistRound(round *roundState) {
	data, _ := json.Marshal(round)
	e.rdb.Set(e.ctx, redisKeyRoundPrefix+strconv.FormatInt(round.ID, 10), data, time.Hour)
}

func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-e.stopChan:
		return false
	}
}

func username(userID int64) string {
	return fmt.Sprintf("player-%d", userID)
}
