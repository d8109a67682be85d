package events

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndEmit(t *testing.T) {
	em := NewEventManager(slog.Default())
	go em.Run()
	defer em.Shutdown()

	all := em.Subscribe(nil)
	flaggedOnly := em.Subscribe(func(evt *PublicationEvent) bool {
		return evt.Status == "flagged"
	})

	em.Emit(&PublicationEvent{Publication: "pub-1", Status: "flagged", ReportCount: 20, Time: time.Now()})
	em.Emit(&PublicationEvent{Publication: "pub-2", Status: "removed", Time: time.Now()})

	evt := recv(t, all)
	assert.Equal(t, "pub-1", evt.Publication)
	evt = recv(t, all)
	assert.Equal(t, "pub-2", evt.Publication)

	evt = recv(t, flaggedOnly)
	assert.Equal(t, "pub-1", evt.Publication)
	assert.Equal(t, int64(20), evt.ReportCount)

	select {
	case evt := <-flaggedOnly.Events():
		t.Fatalf("filtered subscriber received %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	em := NewEventManager(slog.Default())
	go em.Run()
	defer em.Shutdown()

	sub := em.Subscribe(nil)
	em.Unsubscribe(sub)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func recv(t *testing.T, sub *Subscriber) *PublicationEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok)
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
