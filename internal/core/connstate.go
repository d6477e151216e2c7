package core

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Transition struct {
	From, To ConnState
}

// ConnectionStateMachine tracks one session lifecycle. Not safe for concurrent
// use: it lives on the session loop.
type ConnectionStateMachine struct {
	state        ConnState
	reconnecting bool
	observers    []func(Transition)
	teardown     func()
}

func NewConnectionStateMachine(teardown func()) *ConnectionStateMachine {
	return &ConnectionStateMachine{state: StateIdle, teardown: teardown}
}

func (m *ConnectionStateMachine) State() ConnState { return m.state }

func (m *ConnectionStateMachine) IsReconnecting() bool { return m.reconnecting }

// Subscribe registers an observer. Observers run synchronously, in
// registration order, once per actual transition.
func (m *ConnectionStateMachine) Subscribe(fn func(Transition)) {
	m.observers = append(m.observers, fn)
}

func (m *ConnectionStateMachine) BeginConnect() error {
	switch m.state {
	case StateConnecting:
		return ErrAlreadyConnecting
	case StateConnected, StateReconnecting:
		return ErrAlreadyConnected
	}
	m.move(StateConnecting)
	return nil
}

func (m *ConnectionStateMachine) OnConnected() {
	m.reconnecting = false
	m.move(StateConnected)
}

func (m *ConnectionStateMachine) OnReconnecting() error {
	switch m.state {
	case StateReconnecting:
		return nil
	case StateConnected:
		m.reconnecting = true
		m.move(StateReconnecting)
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, StateReconnecting)
}

// OnDisconnected moves to Disconnected. Teardown runs only when the drop
// was not part of a reconnect attempt; tornDown reports whether it ran.
func (m *ConnectionStateMachine) OnDisconnected() (tornDown bool) {
	wasReconnecting := m.reconnecting
	m.move(StateDisconnected)
	if wasReconnecting {
		log.Info().Str("module", "core.connstate").Msg("disconnect during reconnect, teardown suppressed")
		return false
	}
	if m.teardown != nil {
		m.teardown()
	}
	return true
}

// GiveUp ends a failed reconnect: the session is over, teardown runs.
func (m *ConnectionStateMachine) GiveUp() {
	m.reconnecting = false
	m.OnDisconnected()
}

func (m *ConnectionStateMachine) Reset() {
	m.reconnecting = false
	m.move(StateIdle)
}

func (m *ConnectionStateMachine) move(to ConnState) {
	if m.state == to {
		return
	}
	tr := Transition{From: m.state, To: to}
	m.state = to
	log.Debug().Str("module", "core.connstate").Str("from", tr.From.String()).Str("to", tr.To.String()).Msg("transition")
	for _, fn := range m.observers {
		fn(tr)
	}
}
