package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"aviator-client/internal/protocol"
)

// Status is the connection lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// RetryPolicy bounds automatic reconnection. Delay is fixed, not
// exponential: rounds are seconds apart and the server tolerates
// immediate redials.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// StateChange is emitted on every connection status transition. Terminal
// means the retry budget is exhausted and a manual Connect is required.
type StateChange struct {
	Status     Status
	RetryCount int
	Terminal   bool
}

type ErrNotOpen struct {
	Status Status
}

func (e *ErrNotOpen) Error() string {
	return fmt.Sprintf("transport: connection is %s", e.Status)
}

// Conn owns a single duplex socket to the game server. On every successful
// open it starts the ping scheduler and requests a full state resync; on
// abnormal closure it redials within the retry policy.
type Conn struct {
	url          string
	dialer       *websocket.Dialer
	policy       RetryPolicy
	pingInterval time.Duration

	mu          sync.Mutex
	ws          *websocket.Conn
	writeMu     sync.Mutex
	status      Status
	retryCount  int
	manualClose bool
	lastSync    time.Time
	stopPing    chan struct{}

	frames chan []byte
	states chan StateChange
}

func NewConn(url string, policy RetryPolicy, pingInterval time.Duration) *Conn {
	return &Conn{
		url:          url,
		dialer:       websocket.DefaultDialer,
		policy:       policy,
		pingInterval: pingInterval,
		status:       StatusDisconnected,
		frames:       make(chan []byte, 256),
		states:       make(chan StateChange, 16),
	}
}

// Frames delivers inbound text frames in network-arrival order.
func (c *Conn) Frames() <-chan []byte { return c.frames }

// States delivers connection status transitions.
func (c *Conn) States() <-chan StateChange { return c.states }

func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Conn) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// LastServerSync reports when the last frame arrived from the server.
func (c *Conn) LastServerSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Connect dials the endpoint and starts the read loop. It is a no-op when
// the connection is already open or connecting.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.manualClose = false
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		return err
	}

	go c.readLoop()
	return nil
}

// Disconnect closes with a normal-closure code and suppresses reconnection.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
}

// Send writes a single text frame. Fails fast when the socket is not open.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	status := c.status
	c.mu.Unlock()

	if status != StatusOpen || ws == nil {
		return &ErrNotOpen{Status: status}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) dial() error {
	c.setStatus(StatusConnecting, false)

	ws, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		c.setStatus(StatusDisconnected, false)
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.retryCount = 0
	c.lastSync = time.Now()
	c.stopPing = make(chan struct{})
	stop := c.stopPing
	c.mu.Unlock()

	c.setStatus(StatusOpen, false)
	log.Printf("[WS] Connected to %s", c.url)

	go c.pingLoop(stop)
	c.sendResync()
	return nil
}

// sendResync asks for the authoritative game state. Issued on every open so
// a reconnect never resumes from stale local state.
func (c *Conn) sendResync() {
	frame, err := protocol.EncodeAction(protocol.GetGameStateAction{})
	if err != nil {
		return
	}
	if err := c.Send(frame); err != nil {
		log.Printf("[WS] Resync request failed: %v", err)
	}
}

func (c *Conn) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	frame, err := protocol.EncodeAction(protocol.PingAction{})
	if err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := c.Send(frame); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		for {
			msgType, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			c.mu.Lock()
			c.lastSync = time.Now()
			c.mu.Unlock()

			select {
			case c.frames <- msg:
			default:
				log.Println("[WS] Frame buffer full, dropping message")
			}
		}

		c.teardownSocket()

		c.mu.Lock()
		manual := c.manualClose
		c.mu.Unlock()
		if manual {
			c.setStatus(StatusClosed, false)
			log.Println("[WS] Closed by client")
			return
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect redials within the retry policy. Returns false when the budget
// is exhausted or a manual close interrupted the attempts.
func (c *Conn) reconnect() bool {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		c.mu.Lock()
		c.retryCount = attempt
		manual := c.manualClose
		c.mu.Unlock()
		if manual {
			c.setStatus(StatusClosed, false)
			return false
		}

		log.Printf("[WS] Reconnect attempt %d/%d in %v", attempt, c.policy.MaxAttempts, c.policy.Delay)
		time.Sleep(c.policy.Delay)

		if err := c.dial(); err == nil {
			return true
		}
	}

	log.Printf("[WS] Gave up after %d attempts, manual refresh required", c.policy.MaxAttempts)
	c.setStatus(StatusDisconnected, true)
	return false
}

func (c *Conn) teardownSocket() {
	c.mu.Lock()
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.mu.Unlock()
}

func (c *Conn) setStatus(s Status, terminal bool) {
	c.mu.Lock()
	c.status = s
	retry := c.retryCount
	c.mu.Unlock()

	select {
	case c.states <- StateChange{Status: s, RetryCount: retry, Terminal: terminal}:
	default:
	}
}
