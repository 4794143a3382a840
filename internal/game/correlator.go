package game

import (
	"sync"
	"time"
)

// Correlator matches outbound cashout commands to their eventual server
// answer by request id. Every registered request settles exactly once:
// confirmation, rejection, or timeout. A server message for an already
// evicted id is a no-op.
type Correlator struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCashout
}

type pendingCashout struct {
	userID int64
	betID  int64
	result chan CashoutResult
	timer  *time.Timer
}

func NewCorrelator(timeout time.Duration) *Correlator {
	return &Correlator{
		timeout: timeout,
		pending: make(map[string]*pendingCashout),
	}
}

// Register creates a pending entry and arms its timeout. The returned
// channel receives exactly one result.
func (c *Correlator) Register(requestID string, userID, betID int64) <-chan CashoutResult {
	entry := &pendingCashout{
		userID: userID,
		betID:  betID,
		result: make(chan CashoutResult, 1),
	}

	c.mu.Lock()
	c.pending[requestID] = entry
	entry.timer = time.AfterFunc(c.timeout, func() {
		c.settle(requestID, CashoutResult{Err: &CorrelationTimeoutError{RequestID: requestID}})
	})
	c.mu.Unlock()

	return entry.result
}

// Resolve settles the request with the given result. Returns false when the
// id is unknown (already settled or timed out).
func (c *Correlator) Resolve(requestID string, res CashoutResult) bool {
	return c.settle(requestID, res)
}

// ResolveUser settles the pending request for a user when the server answer
// carries no request id. Returns false when the user has none pending.
func (c *Correlator) ResolveUser(userID int64, res CashoutResult) bool {
	c.mu.Lock()
	var match string
	for id, entry := range c.pending {
		if entry.userID == userID {
			match = id
			break
		}
	}
	c.mu.Unlock()

	if match == "" {
		return false
	}
	return c.settle(match, res)
}

// Evict discards a pending entry without delivering a result. Used when the
// send itself failed and the caller reports its own error.
func (c *Correlator) Evict(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.pending[requestID]; ok {
		entry.timer.Stop()
		delete(c.pending, requestID)
	}
}

// FailAll settles every pending request with err. Called on teardown.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.settle(id, CashoutResult{Err: err})
	}
}

func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) settle(requestID string, res CashoutResult) bool {
	c.mu.Lock()
	entry, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	entry.result <- res
	return true
}
