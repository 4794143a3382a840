package game

// Phase is the canonical round phase. Transitions are driven exclusively by
// server messages; local timers never advance the phase.
type Phase string

const (
	PhaseBetting Phase = "betting"
	PhaseFlying  Phase = "flying"
	PhaseCrashed Phase = "crashed"
)

// MinCashoutMultiplier is the floor below which cashing out is rejected.
const MinCashoutMultiplier = 1.01

// Round is the one live round. CrashMultiplier arrives at round start but is
// only used for local "too late" checks; it must never leak into anything
// predictive.
type Round struct {
	ID                 int64
	Phase              Phase
	CurrentMultiplier  float64
	CrashMultiplier    float64 // 0 while unknown
	BettingSecondsLeft int
	BettingClosed      bool
}

// BetInfo is a confirmed in-flight bet. Created only from server
// confirmations, never from the local click.
type BetInfo struct {
	ID          int64
	UserID      int64
	Amount      float64
	AutoCashout float64
}

type CrashRecord struct {
	Multiplier float64
}

// RecentCashout is display-only feed data; it gates nothing.
type RecentCashout struct {
	Username   string
	Multiplier float64
	Amount     float64
	WinAmount  float64
}

// CashoutResult is the settled outcome of a correlated cashout request.
type CashoutResult struct {
	WinAmount  float64
	Multiplier float64
	NewBalance float64
	Err        error
}

// Snapshot is a read-only copy for the UI layer.
type Snapshot struct {
	Round       Round
	LivePlayers int
}

type NotificationKind string

const (
	NotifyCrash           NotificationKind = "crash"
	NotifyConnectionLost  NotificationKind = "connection_lost"
	NotifyRefreshRequired NotificationKind = "refresh_required"
	NotifyServerError     NotificationKind = "server_error"
)

// Notification is a UI-facing event (crash banner, connection toast). The
// channel is best-effort; slow consumers lose notifications, not state.
type Notification struct {
	Kind       NotificationKind
	Message    string
	Multiplier float64
}
