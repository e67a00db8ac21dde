package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewService(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	err := svc.Ping(context.Background())
	assert.NoError(t, err)
}

func TestNewService_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewService(addr, "")
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()

	// Subscribe manually to check if the event arrives
	sub := svc.Client().Subscribe(ctx, EventsChannel)
	defer func() { _ = sub.Close() }()

	// Wait for subscription to be active
	time.Sleep(50 * time.Millisecond)

	err := svc.Publish(ctx, Event{Kind: EventRoomCreated, User: 1, Room: 7})
	assert.NoError(t, err)

	// Receive
	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var ev Event
	err = json.Unmarshal([]byte(msg.Payload), &ev)
	assert.NoError(t, err)

	assert.Equal(t, EventRoomCreated, ev.Kind)
	assert.Equal(t, uint32(1), ev.User)
	assert.Equal(t, uint32(7), ev.Room)
	assert.False(t, ev.At.IsZero(), "Publish should stamp events it sends")
}

func TestSubscribe(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}

	received := make(chan Event, 1)
	svc.Subscribe(ctx, wg, func(ev Event) {
		received <- ev
	})

	// Wait for subscription
	time.Sleep(50 * time.Millisecond)

	// Publish from "another instance" (directly via redis client)
	ev := Event{Kind: EventUserDisconnected, User: 3, At: time.Now().UTC()}
	bytes, _ := json.Marshal(ev)
	svc.Client().Publish(ctx, EventsChannel, bytes)

	select {
	case got := <-received:
		assert.Equal(t, EventUserDisconnected, got.Kind)
		assert.Equal(t, uint32(3), got.User)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Cancel context to stop subscription
	cancel()
	wg.Wait()
}

func TestRedisFailure_Graceful(t *testing.T) {
	svc, mr := newTestService(t)

	// Kill redis
	mr.Close()

	ctx := context.Background()

	// Errors surface but nothing panics; enough failures would trip the
	// breaker and turn publishes into drops.
	err := svc.Ping(ctx)
	assert.Error(t, err)
}

// A nil service is the disabled bus; every method is a quiet no-op.
func TestNilService(t *testing.T) {
	var svc *Service

	assert.Nil(t, svc.Client())
	assert.NoError(t, svc.Publish(context.Background(), Event{Kind: EventUserConnected, User: 1}))
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
	svc.Subscribe(context.Background(), nil, func(Event) { t.Fatal("handler must not run") })
}
