package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/session"
)

func TestPutGetRemove(t *testing.T) {
	m := session.NewManager(time.Hour, nil)
	s := &session.Session{ClientID: "client-1", KeepAlive: 30 * time.Second, LastActivity: time.Now()}
	m.Put(s)

	got, ok := m.Get("client-1")
	require.True(t, ok)
	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, 1, m.Count())

	m.Remove("client-1")
	_, ok = m.Get("client-1")
	assert.False(t, ok)
}

func TestTouchResetsLastActivity(t *testing.T) {
	m := session.NewManager(time.Hour, nil)
	old := time.Now().Add(-time.Minute)
	m.Put(&session.Session{ClientID: "client-1", KeepAlive: 30 * time.Second, LastActivity: old})

	m.Touch("client-1")
	got, _ := m.Get("client-1")
	assert.True(t, got.LastActivity.After(old))
}

func TestSweepExpiresSessionsPastTwiceKeepAlive(t *testing.T) {
	var mu sync.Mutex
	var expiredIDs []string

	m := session.NewManager(20*time.Millisecond, func(s *session.Session) {
		mu.Lock()
		expiredIDs = append(expiredIDs, s.ClientID)
		mu.Unlock()
	})
	m.Put(&session.Session{
		ClientID:     "stale",
		KeepAlive:    10 * time.Millisecond,
		LastActivity: time.Now().Add(-time.Second),
	})
	m.Put(&session.Session{
		ClientID:     "fresh",
		KeepAlive:    time.Hour,
		LastActivity: time.Now(),
	})

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range expiredIDs {
			if id == "stale" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	_, ok := m.Get("fresh")
	assert.True(t, ok)
}

func TestCancelWillPreventsRefire(t *testing.T) {
	m := session.NewManager(time.Hour, nil)
	m.Put(&session.Session{
		ClientID: "client-1",
		Will:     &session.WillMessage{Topic: "lwt"},
	})

	m.CancelWill("client-1")
	got, _ := m.Get("client-1")
	assert.True(t, got.WillCancelled)
}
