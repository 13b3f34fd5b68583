package pubsub

import (
	"context"
	"sync"
)

// bufferSize 订阅者通道的默认缓冲区大小
const bufferSize = 64

// Broker 进程内的事件代理。发布从不阻塞：订阅者处理不过来时事件会被丢弃。
// 钩子进程生命周期很短，事件只用于日志和测试观察，不承载持久化语义。
type Broker[T any] struct {
	subs    map[chan Event[T]]struct{}
	mu      sync.RWMutex
	done    chan struct{}
	once    sync.Once
	bufSize int
}

var _ Publisher[struct{}] = (*Broker[struct{}])(nil)

// NewBroker 使用默认缓冲区创建事件代理
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](bufferSize)
}

// NewBrokerWithBuffer 创建每个订阅者缓冲 size 个事件的代理
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 0 {
		size = 0
	}
	return &Broker[T]{
		subs:    make(map[chan Event[T]]struct{}),
		done:    make(chan struct{}),
		bufSize: size,
	}
}

// Shutdown 关闭所有订阅者通道。可以重复调用。
func (b *Broker[T]) Shutdown() {
	b.once.Do(func() {
		close(b.done)

		b.mu.Lock()
		defer b.mu.Unlock()
		for ch := range b.subs {
			delete(b.subs, ch)
			close(ch)
		}
	})
}

// Subscribe 返回事件通道；ctx 取消或代理关闭时通道被关闭
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.bufSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			// Shutdown 已经关闭了通道
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

// GetSubscriberCount 当前订阅者数量
func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish 把事件发给所有订阅者，通道已满的订阅者会错过该事件
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{Type: t, Payload: payload}
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}
