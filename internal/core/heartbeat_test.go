package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatExpiresWithoutBeats(t *testing.T) {
	mock := clock.NewMock()
	var expired atomic.Int32
	NewHeartbeat(mock, 10*time.Second, func() { expired.Add(1) })

	mock.Add(9 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, expired.Load())

	mock.Add(2 * time.Second)
	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatBeatPushesDeadline(t *testing.T) {
	mock := clock.NewMock()
	var expired atomic.Int32
	h := NewHeartbeat(mock, 10*time.Second, func() { expired.Add(1) })

	for i := 0; i < 5; i++ {
		mock.Add(8 * time.Second)
		h.Beat()
	}
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, expired.Load())

	mock.Add(11 * time.Second)
	require.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatStop(t *testing.T) {
	mock := clock.NewMock()
	var expired atomic.Int32
	h := NewHeartbeat(mock, 10*time.Second, func() { expired.Add(1) })
	h.Stop()
	h.Beat()

	mock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, expired.Load())
}
