package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Error codes the server attaches to rejected requests.
const (
	CodeRoundInactive       = "round_inactive"
	CodeInsufficientBalance = "insufficient_balance"
)

// APIError is a server rejection that carries no special recovery path; the
// message is shown to the user verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rest: server rejected request (%d %s): %s", e.Status, e.Code, e.Message)
}

// RoundInvalidError marks a transient race against round rollover. The
// coordinator recreates the round and retries exactly once.
type RoundInvalidError struct {
	Message string
}

func (e *RoundInvalidError) Error() string {
	return "rest: round invalid: " + e.Message
}

// InsufficientBalanceError reports the server-side balance check failing.
type InsufficientBalanceError struct {
	Balance float64
	Message string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("rest: insufficient balance (%.2f available)", e.Balance)
}

type CreateRoundResponse struct {
	RoundID int64 `json:"round_id"`
}

type PlaceBetResponse struct {
	BetID   int64   `json:"bet_id"`
	Balance float64 `json:"balance"`
}

type CashoutResponse struct {
	WinAmount  float64 `json:"win_amount"`
	Balance    float64 `json:"balance"`
	Multiplier float64 `json:"multiplier"`
}

type BalanceResponse struct {
	UserID  int64   `json:"user_id"`
	Balance float64 `json:"balance"`
}

type Winner struct {
	Username string  `json:"username"`
	TotalWin float64 `json:"total_win"`
}

// Client talks to the game backend's REST surface.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
}

func (c *Client) CreateRound() (CreateRoundResponse, error) {
	var out CreateRoundResponse
	err := c.do(fasthttp.MethodPost, "/rounds", nil, &out)
	return out, err
}

func (c *Client) PlaceBet(userID int64, amount float64, roundID int64, autoCashout float64) (PlaceBetResponse, error) {
	body := map[string]interface{}{
		"user_id":  userID,
		"amount":   amount,
		"round_id": roundID,
	}
	if autoCashout > 0 {
		body["auto_cashout"] = autoCashout
	}

	var out PlaceBetResponse
	err := c.do(fasthttp.MethodPost, "/game/bet", body, &out)
	return out, err
}

func (c *Client) Cashout(userID, betID int64, multiplier float64) (CashoutResponse, error) {
	body := map[string]interface{}{
		"user_id":    userID,
		"bet_id":     betID,
		"multiplier": multiplier,
	}

	var out CashoutResponse
	err := c.do(fasthttp.MethodPost, "/game/cashout", body, &out)
	return out, err
}

func (c *Client) Balance(userID int64) (float64, error) {
	var out BalanceResponse
	err := c.do(fasthttp.MethodGet, fmt.Sprintf("/user/%d/balance", userID), nil, &out)
	return out.Balance, err
}

// History fetches the most-recent-first crash multiplier snapshot.
func (c *Client) History() ([]float64, error) {
	var out struct {
		Multipliers []float64 `json:"multipliers"`
	}
	err := c.do(fasthttp.MethodGet, "/history", nil, &out)
	return out.Multipliers, err
}

func (c *Client) TopWinners() ([]Winner, error) {
	var out struct {
		Winners []Winner `json:"winners"`
	}
	err := c.do(fasthttp.MethodGet, "/winners", nil, &out)
	return out.Winners, err
}

func (c *Client) do(method, path string, body, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: encode %s: %w", path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status >= 400 {
		return decodeError(status, resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("rest: decode %s response: %w", path, err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Code    string  `json:"code"`
		Message string  `json:"message"`
		Error   string  `json:"error"`
		Balance float64 `json:"balance"`
	}
	// Best effort; an unparseable body still yields a useful APIError.
	json.Unmarshal(body, &payload)

	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}

	switch payload.Code {
	case CodeRoundInactive:
		return &RoundInvalidError{Message: msg}
	case CodeInsufficientBalance:
		return &InsufficientBalanceError{Balance: payload.Balance, Message: msg}
	default:
		return &APIError{Status: status, Code: payload.Code, Message: msg}
	}
}
