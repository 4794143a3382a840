package game

import (
	"testing"

	"aviator-client/internal/protocol"
)

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine()

	round := m.Round()
	if round.Phase != PhaseBetting {
		t.Errorf("initial phase = %v, want betting", round.Phase)
	}
	if round.CurrentMultiplier != 1.0 {
		t.Errorf("initial multiplier = %v, want 1.0", round.CurrentMultiplier)
	}
}

func TestMachine_RoundStarted(t *testing.T) {
	m := NewMachine()
	m.ApplyBettingOpen(protocol.BettingOpen{Countdown: 5})

	m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 7, Multiplier: 1.0, CrashMultiplier: 3.4})

	round := m.Round()
	if round.Phase != PhaseFlying {
		t.Errorf("phase = %v, want flying", round.Phase)
	}
	if round.ID != 7 {
		t.Errorf("round id = %v, want 7", round.ID)
	}
	if round.CrashMultiplier != 3.4 {
		t.Errorf("crash multiplier = %v, want 3.4", round.CrashMultiplier)
	}
	if round.BettingSecondsLeft != 0 {
		t.Errorf("countdown = %v, want stopped", round.BettingSecondsLeft)
	}
}

func TestMachine_RoundStartedTwiceIsHarmless(t *testing.T) {
	m := NewMachine()
	ev := protocol.RoundStarted{RoundID: 7, Multiplier: 1.0, CrashMultiplier: 3.4}

	m.ApplyRoundStarted(ev)
	m.ApplyRoundStarted(ev)

	round := m.Round()
	if round.Phase != PhaseFlying || round.ID != 7 {
		t.Errorf("duplicate round_started corrupted state: %#v", round)
	}
}

func TestMachine_MultiplierMonotonic(t *testing.T) {
	m := NewMachine()
	m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 1, Multiplier: 1.0, CrashMultiplier: 5.0})

	if !m.ApplyMultiplier(protocol.MultiplierUpdate{Multiplier: 1.5}) {
		t.Error("forward multiplier should apply")
	}
	if m.ApplyMultiplier(protocol.MultiplierUpdate{Multiplier: 1.2}) {
		t.Error("backwards multiplier should be ignored")
	}
	if got := m.Round().CurrentMultiplier; got != 1.5 {
		t.Errorf("multiplier = %v, want 1.5", got)
	}
}

func TestMachine_MultiplierIgnoredWhileBetting(t *testing.T) {
	m := NewMachine()
	m.ApplyBettingOpen(protocol.BettingOpen{Countdown: 5})

	if m.ApplyMultiplier(protocol.MultiplierUpdate{Multiplier: 2.0}) {
		t.Error("multiplier should not apply during betting")
	}
	if got := m.Round().CurrentMultiplier; got != 1.0 {
		t.Errorf("multiplier = %v, want 1.0", got)
	}
}

func TestMachine_MultiplierIgnoredAfterCrash(t *testing.T) {
	m := NewMachine()
	m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 1, Multiplier: 1.0, CrashMultiplier: 2.0})
	m.ApplyCrash(protocol.Crash{Multiplier: 2.0})

	if m.ApplyMultiplier(protocol.MultiplierUpdate{Multiplier: 2.5}) {
		t.Error("multiplier after crash should be ignored, crash is terminal")
	}

	round := m.Round()
	if round.Phase != PhaseCrashed {
		t.Errorf("phase = %v, want crashed", round.Phase)
	}
	if round.CurrentMultiplier != 2.0 {
		t.Errorf("multiplier = %v, want frozen at 2.0", round.CurrentMultiplier)
	}
}

func TestMachine_CrashFreezesReportedValue(t *testing.T) {
	m := NewMachine()
	m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 1, Multiplier: 1.0, CrashMultiplier: 2.15})
	m.ApplyMultiplier(protocol.MultiplierUpdate{Multiplier: 2.10})

	m.ApplyCrash(protocol.Crash{Multiplier: 2.15})

	round := m.Round()
	if round.CurrentMultiplier != 2.15 {
		t.Errorf("multiplier = %v, want crash value 2.15", round.CurrentMultiplier)
	}
}

func TestMachine_BettingOpenResetsRound(t *testing.T) {
	m := NewMachine()
	m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 1, Multiplier: 1.0, CrashMultiplier: 2.0})
	m.ApplyCrash(protocol.Crash{Multiplier: 2.0})

	m.ApplyBettingOpen(protocol.BettingOpen{Countdown: 5})

	round := m.Round()
	if round.Phase != PhaseBetting {
		t.Errorf("phase = %v, want betting", round.Phase)
	}
	if round.CurrentMultiplier != 1.0 {
		t.Errorf("multiplier = %v, want reset to 1.0", round.CurrentMultiplier)
	}
	if round.CrashMultiplier != 0 {
		t.Errorf("crash value = %v, want cleared", round.CrashMultiplier)
	}
	if round.BettingSecondsLeft != 5 {
		t.Errorf("countdown = %v, want 5", round.BettingSecondsLeft)
	}
	if round.BettingClosed {
		t.Error("betting window should be open")
	}
}

func TestMachine_CountdownTick(t *testing.T) {
	m := NewMachine()
	m.ApplyBettingOpen(protocol.BettingOpen{Countdown: 2})

	m.TickCountdown()
	if round := m.Round(); round.BettingSecondsLeft != 1 || round.BettingClosed {
		t.Errorf("after one tick: %#v", round)
	}

	m.TickCountdown()
	round := m.Round()
	if round.BettingSecondsLeft != 0 {
		t.Errorf("countdown = %v, want 0", round.BettingSecondsLeft)
	}
	if !round.BettingClosed {
		t.Error("betting window should be flagged closed at zero")
	}
	// The countdown is advisory; the phase waits for round_started.
	if round.Phase != PhaseBetting {
		t.Errorf("phase = %v, want still betting", round.Phase)
	}

	m.TickCountdown() // no underflow
	if round := m.Round(); round.BettingSecondsLeft != 0 {
		t.Errorf("countdown underflowed to %v", round.BettingSecondsLeft)
	}
}

func TestMachine_SyncOverwritesLocalState(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Machine)
		sync      protocol.GameState
		wantPhase Phase
	}{
		{
			name:  "sync to flying from betting",
			setup: func(m *Machine) { m.ApplyBettingOpen(protocol.BettingOpen{Countdown: 5}) },
			sync: protocol.GameState{
				RoundID:           9,
				CurrentMultiplier: 1.8,
				CrashMultiplier:   2.5,
				IsActive:          true,
			},
			wantPhase: PhaseFlying,
		},
		{
			name: "sync to crashed from flying",
			setup: func(m *Machine) {
				m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 3, Multiplier: 1.0, CrashMultiplier: 9.9})
			},
			sync: protocol.GameState{
				RoundID:           3,
				CurrentMultiplier: 9.9,
				CrashMultiplier:   9.9,
				Crashed:           true,
			},
			wantPhase: PhaseCrashed,
		},
		{
			name: "sync back to betting from crashed",
			setup: func(m *Machine) {
				m.ApplyRoundStarted(protocol.RoundStarted{RoundID: 3, Multiplier: 1.0, CrashMultiplier: 2.0})
				m.ApplyCrash(protocol.Crash{Multiplier: 2.0})
			},
			sync: protocol.GameState{
				RoundID:           4,
				CurrentMultiplier: 1.0,
				IsBetting:         true,
			},
			wantPhase: PhaseBetting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			tt.setup(m)

			m.ApplySync(tt.sync)

			round := m.Round()
			if round.Phase != tt.wantPhase {
				t.Errorf("phase = %v, want %v", round.Phase, tt.wantPhase)
			}
			if round.CurrentMultiplier != tt.sync.CurrentMultiplier {
				t.Errorf("multiplier = %v, want %v", round.CurrentMultiplier, tt.sync.CurrentMultiplier)
			}
			if round.CrashMultiplier != tt.sync.CrashMultiplier {
				t.Errorf("crash value = %v, want %v", round.CrashMultiplier, tt.sync.CrashMultiplier)
			}
			if tt.sync.RoundID != 0 && round.ID != tt.sync.RoundID {
				t.Errorf("round id = %v, want %v", round.ID, tt.sync.RoundID)
			}
		})
	}
}
