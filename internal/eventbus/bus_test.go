package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	bus := New(4)
	chA, unsubA := bus.Subscribe()
	chB, unsubB := bus.Subscribe()
	defer unsubA()
	defer unsubB()

	bus.Publish(domain.WorkflowEvent{Type: domain.EventOrchestratorStart, SessionID: "s1"})

	select {
	case evt := <-chA:
		require.Equal(t, domain.EventOrchestratorStart, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber A did not receive event")
	}
	select {
	case evt := <-chB:
		require.Equal(t, domain.EventOrchestratorStart, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber B did not receive event")
	}
}

func TestBus_PublishDoesNotBlockOnFullSubscriberBuffer(t *testing.T) {
	bus := New(1)
	ch, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(domain.WorkflowEvent{Type: domain.EventAgentChunk, SessionID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	// exactly one event survives in the 1-slot buffer; the rest were dropped.
	require.Len(t, ch, 1)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(4)
	ch, unsub := bus.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBus_CloseClosesAllOutstandingSubscribers(t *testing.T) {
	bus := New(4)
	chA, _ := bus.Subscribe()
	chB, _ := bus.Subscribe()

	bus.Close()

	_, okA := <-chA
	_, okB := <-chB
	require.False(t, okA)
	require.False(t, okB)
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	bus := New(4)
	bus.Close()
	require.NotPanics(t, func() {
		bus.Publish(domain.WorkflowEvent{Type: domain.EventOrchestratorEnd, SessionID: "s1"})
	})
}

func TestBus_SubscribeAfterCloseStillReturnsAClosableChannel(t *testing.T) {
	bus := New(4)
	bus.Close()
	require.NotPanics(t, func() {
		_, unsub := bus.Subscribe()
		unsub()
	})
}

func TestBus_DoubleCloseIsSafe(t *testing.T) {
	bus := New(4)
	bus.Close()
	require.NotPanics(t, func() { bus.Close() })
}
