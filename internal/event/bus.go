package event

import (
	"sync"

	"github.com/google/uuid"
)

// EventType 定义事件类型
type EventType string

const (
	EventRefreshStarted  EventType = "refresh_started"
	EventRefreshFinished EventType = "refresh_finished"
	EventReleaseCreated  EventType = "release_created"
)

// AllTypes is every topic the pipeline publishes.
var AllTypes = []EventType{EventRefreshStarted, EventRefreshFinished, EventReleaseCreated}

// Event 代表一个系统事件
type Event struct {
	Type    EventType
	Payload interface{}
}

// RefreshPayload is published for refresh_started and refresh_finished.
type RefreshPayload struct {
	Subscription string `json:"subscription"`
	Created      int    `json:"created,omitempty"`
	Linked       int    `json:"linked,omitempty"`
	Failed       int    `json:"failed,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Handler 处理事件的函数签名
type Handler func(event Event)

// Bus 事件总线接口
type Bus interface {
	Subscribe(topic EventType, handler Handler) string // 返回 Subscription ID
	// SubscribeTopics 用同一个 ID 订阅多个主题，跨主题也按发布顺序投递
	SubscribeTopics(handler Handler, topics ...EventType) string
	Unsubscribe(topic EventType, subID string)
	Publish(topic EventType, payload interface{})
}

// mailbox 按发布顺序把事件交给一个订阅者，最多一个投递 goroutine
type mailbox struct {
	handler Handler

	mu      sync.Mutex
	queue   []Event
	running bool
	closed  bool
}

func (m *mailbox) post(evt Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, evt)
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()
	go m.drain()
}

func (m *mailbox) drain() {
	for {
		m.mu.Lock()
		if m.closed || len(m.queue) == 0 {
			m.running = false
			m.queue = nil
			m.mu.Unlock()
			return
		}
		evt := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.handler(evt)
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

type handlerEntry struct {
	id  string
	box *mailbox
}

// InMemoryBus 简单的内存事件总线实现
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[EventType][]handlerEntry),
	}
}

func (b *InMemoryBus) Subscribe(topic EventType, handler Handler) string {
	return b.SubscribeTopics(handler, topic)
}

func (b *InMemoryBus) SubscribeTopics(handler Handler, topics ...EventType) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	box := &mailbox{handler: handler}
	for _, topic := range topics {
		b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, box: box})
	}
	return id
}

// Unsubscribe 从 topic 移除订阅；该 ID 不再订阅任何主题时停止投递
func (b *InMemoryBus) Unsubscribe(topic EventType, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var box *mailbox
	entries := b.handlers[topic]
	for i, e := range entries {
		if e.id == subID {
			box = e.box
			b.handlers[topic] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if box == nil {
		return
	}
	for _, entries := range b.handlers {
		for _, e := range entries {
			if e.id == subID {
				return
			}
		}
	}
	box.close()
}

// Publish never blocks the publisher. Each subscriber sees events in the
// order they were published; different subscribers run independently.
func (b *InMemoryBus) Publish(topic EventType, payload interface{}) {
	b.mu.RLock()
	entries := b.handlers[topic]
	b.mu.RUnlock()

	evt := Event{Type: topic, Payload: payload}
	for _, e := range entries {
		e.box.post(evt)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Subscribe(EventType, Handler) string         { return "" }
func (Nop) SubscribeTopics(Handler, ...EventType) string { return "" }
func (Nop) Unsubscribe(EventType, string)                {}
func (Nop) Publish(EventType, interface{})               {}
