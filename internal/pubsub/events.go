package pubsub

import "context"

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Subscriber 由会话和队列服务实现，用于观察存储变化
type Subscriber[T any] interface {
	Subscribe(context.Context) <-chan Event[T]
	// Shutdown 关闭所有订阅
	Shutdown()
}

type (
	// EventType 事件类型
	EventType string

	// Event 存储记录生命周期中的一个事件
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	Publisher[T any] interface {
		Publish(EventType, T)
	}
)
