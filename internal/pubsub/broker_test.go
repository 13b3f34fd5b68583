package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker[string]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.GetSubscriberCount())

	b.Publish(CreatedEvent, "s1")
	select {
	case ev := <-ch:
		require.Equal(t, CreatedEvent, ev.Type)
		require.Equal(t, "s1", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	// 通道在取消后被关闭
	for range ch {
	}
	require.Eventually(t, func() bool { return b.GetSubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestShutdownClosesSubscribers(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	b.Shutdown()
	b.Shutdown()

	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, b.GetSubscriberCount())

	// 关闭后发布和订阅都是空操作
	b.Publish(UpdatedEvent, 1)
	_, ok = <-b.Subscribe(context.Background())
	require.False(t, ok)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBrokerWithBuffer[int](1)
	defer b.Shutdown()
	ch := b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 10 {
			b.Publish(CreatedEvent, i)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	ev := <-ch
	require.Equal(t, 0, ev.Payload)
}
