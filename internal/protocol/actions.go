package protocol

import "encoding/json"

// Outbound actions the client can send over the socket.
const (
	ActionPing         = "ping"
	ActionGetGameState = "get_game_state"
	ActionCashout      = "cashout"
)

type Action interface {
	actionName() string
}

type PingAction struct{}

type GetGameStateAction struct{}

type CashoutAction struct {
	RequestID  string  `json:"request_id"`
	BetID      int64   `json:"bet_id"`
	Multiplier float64 `json:"multiplier"`
}

func (PingAction) actionName() string         { return ActionPing }
func (GetGameStateAction) actionName() string { return ActionGetGameState }
func (CashoutAction) actionName() string      { return ActionCashout }

// EncodeAction serializes an action frame as {"action": "...", ...fields}.
func EncodeAction(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	tag, _ := json.Marshal(a.actionName())
	if string(body) == "{}" {
		return []byte(`{"action":` + string(tag) + `}`), nil
	}
	out := []byte(`{"action":` + string(tag) + `,`)
	return append(out, body[1:]...), nil
}

// DecodeAction parses an inbound action frame. Server side of the contract.
type ActionEnvelope struct {
	Action     string  `json:"action"`
	RequestID  string  `json:"request_id,omitempty"`
	BetID      int64   `json:"bet_id,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

func DecodeAction(raw []byte) (ActionEnvelope, error) {
	var env ActionEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
