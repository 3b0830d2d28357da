package bus

import (
	"context"
	"log/slog"
	"sync"
)

// MessageBus carries inbound Telegram messages to the dispatcher and
// outbound relay messages to channel subscribers.
type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	subs      map[string][]func(OutboundMessage) // channel name -> subscribers
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewMessageBus creates a bus; bufSize <= 0 defaults to 100.
func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
		subs:     make(map[string][]func(OutboundMessage)),
	}
}

// PublishInbound queues msg for the dispatcher, giving up when ctx ends.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound queues msg for relay delivery, giving up when ctx ends.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return InboundMessage{}, context.Canceled
		}
		return msg, nil
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// Subscribe registers fn for outbound messages of one channel. An empty
// channel name subscribes to all of them.
func (b *MessageBus) Subscribe(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], fn)
}

// DispatchOutbound delivers outbound messages until ctx is cancelled or
// the bus is closed.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg, ok := <-b.outbound:
			if !ok {
				return
			}
			b.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) dispatch(msg OutboundMessage) {
	b.mu.RLock()
	fns := append([]func(OutboundMessage){}, b.subs[msg.Channel]...)
	fns = append(fns, b.subs[""]...)
	b.mu.RUnlock()

	if len(fns) == 0 {
		slog.Warn("bus: no subscriber for outbound message", "channel", msg.Channel, "chat", msg.ChatID)
		return
	}
	for _, fn := range fns {
		deliver(fn, msg)
	}
}

func deliver(fn func(OutboundMessage), msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: subscriber panicked", "channel", msg.Channel, "panic", r)
		}
	}()
	fn(msg)
}

// Close closes both queues. Calling it twice is safe.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		close(b.inbound)
		close(b.outbound)
	})
}
