package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStateMachineHappyPath(t *testing.T) {
	teardowns := 0
	m := NewConnectionStateMachine(func() { teardowns++ })
	var seen []Transition
	m.Subscribe(func(tr Transition) { seen = append(seen, tr) })

	require.NoError(t, m.BeginConnect())
	m.OnConnected()
	m.OnConnected() // duplicate event, not a transition
	assert.True(t, m.OnDisconnected())
	m.Reset()

	assert.Equal(t, []Transition{
		{StateIdle, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnected, StateDisconnected},
		{StateDisconnected, StateIdle},
	}, seen)
	assert.Equal(t, 1, teardowns)
	assert.Equal(t, StateIdle, m.State())
}

func TestConnectionStateMachineBeginConnectGuards(t *testing.T) {
	m := NewConnectionStateMachine(nil)
	require.NoError(t, m.BeginConnect())
	assert.ErrorIs(t, m.BeginConnect(), ErrAlreadyConnecting)
	m.OnConnected()
	assert.ErrorIs(t, m.BeginConnect(), ErrAlreadyConnected)

	m.OnDisconnected()
	assert.NoError(t, m.BeginConnect(), "a disconnected session may connect again")
}

func TestDisconnectWhileReconnectingSkipsTeardown(t *testing.T) {
	teardowns := 0
	m := NewConnectionStateMachine(func() { teardowns++ })
	require.NoError(t, m.BeginConnect())
	m.OnConnected()

	require.NoError(t, m.OnReconnecting())
	require.NoError(t, m.OnReconnecting(), "idempotent")
	assert.True(t, m.IsReconnecting())

	assert.False(t, m.OnDisconnected())
	assert.Equal(t, 0, teardowns)
	assert.Equal(t, StateDisconnected, m.State())

	m.OnConnected()
	assert.False(t, m.IsReconnecting())
	assert.Equal(t, StateConnected, m.State())
}

func TestGiveUpTearsDown(t *testing.T) {
	teardowns := 0
	m := NewConnectionStateMachine(func() { teardowns++ })
	require.NoError(t, m.BeginConnect())
	m.OnConnected()
	require.NoError(t, m.OnReconnecting())

	m.GiveUp()
	assert.Equal(t, 1, teardowns)
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, m.IsReconnecting())
}

func TestReconnectingOnlyFromConnected(t *testing.T) {
	m := NewConnectionStateMachine(nil)
	assert.ErrorIs(t, m.OnReconnecting(), ErrInvalidTransition)
	assert.Equal(t, StateIdle, m.State())
}
