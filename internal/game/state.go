package game

import (
	"sync"

	"aviator-client/internal/protocol"
)

// Machine holds the canonical round state. Every transition is applied from
// a server message; duplicates are harmless overwrites and an authoritative
// game_state sync always wins over locally inferred state.
type Machine struct {
	mu    sync.RWMutex
	round Round
}

func NewMachine() *Machine {
	return &Machine{
		round: Round{Phase: PhaseBetting, CurrentMultiplier: 1.0},
	}
}

func (m *Machine) Round() Round {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.round
}

// ApplyBettingOpen enters the betting window: multiplier back to 1.0, crash
// value cleared, countdown armed from the server-provided seconds.
func (m *Machine) ApplyBettingOpen(ev protocol.BettingOpen) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.round = Round{
		Phase:              PhaseBetting,
		CurrentMultiplier:  1.0,
		BettingSecondsLeft: ev.Countdown,
	}
}

// ApplyRoundStarted enters flying. The crash value is recorded but stays
// internal until the crash event.
func (m *Machine) ApplyRoundStarted(ev protocol.RoundStarted) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mult := ev.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	m.round.ID = ev.RoundID
	m.round.Phase = PhaseFlying
	m.round.CurrentMultiplier = mult
	m.round.CrashMultiplier = ev.CrashMultiplier
	m.round.BettingSecondsLeft = 0
	m.round.BettingClosed = true
}

// ApplyMultiplier updates the multiplier while flying. Reports whether the
// update was applied; ticks after a crash or outside flight are ignored,
// and the multiplier never moves backwards.
func (m *Machine) ApplyMultiplier(ev protocol.MultiplierUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.Phase != PhaseFlying {
		return false
	}
	if ev.Multiplier < m.round.CurrentMultiplier {
		return false
	}

	m.round.CurrentMultiplier = ev.Multiplier
	return true
}

// ApplyCrash freezes the round at the reported multiplier. Crash is
// terminal until the next betting_open.
func (m *Machine) ApplyCrash(ev protocol.Crash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.round.Phase = PhaseCrashed
	m.round.CurrentMultiplier = ev.Multiplier
	m.round.CrashMultiplier = ev.Multiplier
}

// ApplySync unconditionally overwrites local state from an authoritative
// game_state message. This is the resync path after reconnect or staleness.
func (m *Machine) ApplySync(ev protocol.GameState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	phase := PhaseBetting
	switch {
	case ev.Crashed:
		phase = PhaseCrashed
	case ev.IsActive:
		phase = PhaseFlying
	}

	m.round = Round{
		ID:                m.round.ID,
		Phase:             phase,
		CurrentMultiplier: ev.CurrentMultiplier,
		CrashMultiplier:   ev.CrashMultiplier,
		BettingClosed:     !ev.IsBetting,
	}
	if ev.RoundID != 0 {
		m.round.ID = ev.RoundID
	}
}

// TickCountdown advances the local betting countdown by one second. The
// countdown is advisory UI state; reaching zero closes the betting window
// flag but the phase waits for round_started.
func (m *Machine) TickCountdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round.Phase != PhaseBetting || m.round.BettingSecondsLeft <= 0 {
		return
	}

	m.round.BettingSecondsLeft--
	if m.round.BettingSecondsLeft == 0 {
		m.round.BettingClosed = true
	}
}

// SetRoundID adopts a REST-created round id when none is known locally.
func (m *Machine) SetRoundID(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round.ID = id
}
