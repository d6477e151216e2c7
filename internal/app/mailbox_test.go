package app

import (
	"context"
	"testing"

	"github.com/dkeye/roomview/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxRunsInOrder(t *testing.T) {
	m := NewMailbox()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		m.Post(func() { got = append(got, i) })
	}
	require.NoError(t, m.Do(context.Background(), func() {}))
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	m.Close()
	<-m.Done()
}

func TestMailboxSurvivesPanic(t *testing.T) {
	m := NewMailbox()
	ran := false
	m.Post(func() { panic("bad event") })
	require.NoError(t, m.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
	m.Close()
}

func TestMailboxClosed(t *testing.T) {
	m := NewMailbox()
	m.Close()
	<-m.Done()
	assert.False(t, m.Post(func() {}))
	assert.ErrorIs(t, m.Do(context.Background(), func() {}), core.ErrSessionClosed)
}
