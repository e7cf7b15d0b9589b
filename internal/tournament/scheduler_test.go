package tournament

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoScheduler_StartCreatesChallenge(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s := NewAutoScheduler(m)
	s.check = 50 * time.Millisecond
	require.NoError(t, s.Start())
	defer s.Stop()

	// The first check fires immediately and opens a challenge.
	deadline := time.Now().Add(5 * time.Second)
	for !m.HasOpenRegistration(TypeChallenge) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, m.HasOpenRegistration(TypeChallenge), "no challenge opened")
}

func TestAutoScheduler_StopIsPrompt(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	s := NewAutoScheduler(m)
	s.check = 50 * time.Millisecond
	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop promptly")
	}
	assert.False(t, s.running.Load())
}
