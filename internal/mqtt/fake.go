package mqtt

import (
	"strings"
	"sync"
)

// Published is one message recorded by FakeConn.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeConn records publishes and lets tests deliver messages to
// subscribers without a broker.
type FakeConn struct {
	mu sync.Mutex

	Subscriptions map[string]MessageHandler
	Published     []Published

	// PublishError, if set, is returned by Publish.
	PublishError error

	Connected bool
	Closed    bool
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		Subscriptions: make(map[string]MessageHandler),
		Connected:     true,
	}
}

func (f *FakeConn) Subscribe(topic string, qos byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions[topic] = handler
	return nil
}

func (f *FakeConn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

func (f *FakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakeConn) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = v
}

func (f *FakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Connected = false
}

// Deliver routes a message to every subscription whose filter matches.
func (f *FakeConn) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	var handlers []MessageHandler
	for filter, h := range f.Subscriptions {
		if topicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
