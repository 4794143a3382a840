package game

import "sync"

// Ledger tracks confirmed in-flight bets, at most one per user. Mutations
// come only from confirmed server messages or mirrored REST successes; the
// UI reads, never writes.
type Ledger struct {
	mu   sync.RWMutex
	bets map[int64]BetInfo
}

func NewLedger() *Ledger {
	return &Ledger{bets: make(map[int64]BetInfo)}
}

func (l *Ledger) AddBet(userID int64, bet BetInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bet.UserID = userID
	l.bets[userID] = bet
}

func (l *Ledger) RemoveBet(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.bets, userID)
}

func (l *Ledger) HasBet(userID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.bets[userID]
	return ok
}

func (l *Ledger) GetBet(userID int64) (BetInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bet, ok := l.bets[userID]
	return bet, ok
}

func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bets)
}

// Clear drops every entry. Called on betting_open and after a crash.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bets = make(map[int64]BetInfo)
}
