package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound message types. Aliases exist because the server emits both the
// short and long spellings depending on code path.
const (
	TypeBettingOpen      = "betting_open"
	TypeRoundStarted     = "round_started"
	TypeMultiplier       = "multiplier"
	TypeMultiplierUpdate = "multiplier_update"
	TypeCrash            = "crash"
	TypeRoundCrashed     = "round_crashed"
	TypeGameState        = "game_state"
	TypeGameStateSync    = "game_state_sync"
	TypeBetPlaced        = "bet_placed"
	TypeCashOutSuccess   = "cash_out_success"
	TypeCashOut          = "cash_out"
	TypeBetError         = "bet_error"
	TypeCashoutError     = "cashout_error"
	TypePong             = "pong"
)

// Event is a decoded server frame. The set of implementations is closed;
// the dispatcher type-switches over all of them.
type Event interface {
	eventType() string
}

type BettingOpen struct {
	Countdown int `json:"countdown"`
}

type RoundStarted struct {
	RoundID         int64   `json:"round_id"`
	Multiplier      float64 `json:"multiplier"`
	CrashMultiplier float64 `json:"crash_multiplier"`
}

type MultiplierUpdate struct {
	Multiplier float64 `json:"multiplier"`
}

type Crash struct {
	Multiplier float64 `json:"multiplier"`
}

type GameState struct {
	RoundID           int64   `json:"round_id"`
	CurrentMultiplier float64 `json:"current_multiplier"`
	CrashMultiplier   float64 `json:"crash_multiplier"`
	IsActive          bool    `json:"is_active"`
	IsBetting         bool    `json:"is_betting"`
	Crashed           bool    `json:"crashed"`
}

type BetPlaced struct {
	UserID      int64    `json:"user_id"`
	BetID       int64    `json:"bet_id"`
	Amount      float64  `json:"amount"`
	AutoCashout float64  `json:"auto_cashout,omitempty"`
	NewBalance  *float64 `json:"new_balance,omitempty"`
}

type CashOutSuccess struct {
	UserID     int64   `json:"user_id"`
	RequestID  string  `json:"request_id,omitempty"`
	NewBalance float64 `json:"new_balance"`
	WinAmount  float64 `json:"win_amount"`
	Multiplier float64 `json:"multiplier"`
}

// CashOut is the display-only feed of other players' cashouts. It never
// gates any client action.
type CashOut struct {
	Username   string  `json:"username"`
	Multiplier float64 `json:"multiplier"`
	Amount     float64 `json:"amount"`
	WinAmount  float64 `json:"win_amount"`
}

type BetError struct {
	Message string `json:"message"`
}

type CashoutError struct {
	RequestID   string `json:"request_id,omitempty"`
	Message     string `json:"message"`
	ServerCrash bool   `json:"server_crash,omitempty"`
}

type Pong struct{}

func (BettingOpen) eventType() string      { return TypeBettingOpen }
func (RoundStarted) eventType() string     { return TypeRoundStarted }
func (MultiplierUpdate) eventType() string { return TypeMultiplier }
func (Crash) eventType() string            { return TypeCrash }
func (GameState) eventType() string        { return TypeGameState }
func (BetPlaced) eventType() string        { return TypeBetPlaced }
func (CashOutSuccess) eventType() string   { return TypeCashOutSuccess }
func (CashOut) eventType() string          { return TypeCashOut }
func (BetError) eventType() string         { return TypeBetError }
func (CashoutError) eventType() string     { return TypeCashoutError }
func (Pong) eventType() string             { return TypePong }

type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a raw server frame into its typed event. Unknown types are
// reported, not silently dropped, so new server messages surface in logs
// instead of vanishing.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	switch env.Type {
	case TypeBettingOpen:
		var ev BettingOpen
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeRoundStarted:
		var ev RoundStarted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeMultiplier, TypeMultiplierUpdate:
		var ev MultiplierUpdate
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeCrash, TypeRoundCrashed:
		var ev Crash
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeGameState, TypeGameStateSync:
		var ev GameState
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeBetPlaced:
		var ev BetPlaced
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeCashOutSuccess:
		var ev CashOutSuccess
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeCashOut:
		var ev CashOut
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeBetError:
		var ev BetError
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypeCashoutError:
		var ev CashoutError
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
		}
		return ev, nil

	case TypePong:
		return Pong{}, nil

	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

// Marshal wraps an event with its type tag for the wire. Used by the
// simulation server; the client only decodes.
func Marshal(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	tag, _ := json.Marshal(ev.eventType())
	if string(body) == "{}" {
		return []byte(fmt.Sprintf(`{"type":%s}`, tag)), nil
	}
	return []byte(fmt.Sprintf(`{"type":%s,%s`, tag, body[1:])), nil
}
