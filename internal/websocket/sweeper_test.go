package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RejectsInvalidSchedule(t *testing.T) {
	s := NewSweeper(NewRegistry(testLogger()), "every now and then", testLogger())
	require.Error(t, s.Start())
}

func TestSweeper_DropsEmptyConversations(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLogger())
	s := NewSweeper(registry, "", testLogger())
	req.NoError(s.Start())
	defer s.Stop()

	avaria := uuid.NewString()
	conn, _ := newTestConn("alice")
	registry.Subscribe(avaria, "alice", conn)
	registry.Unsubscribe(avaria, "alice")
	req.Equal(1, registry.Stats().Conversations)

	s.sweep()
	req.Equal(0, registry.Stats().Conversations)
}
