// Package events fans run lifecycle events out to subscribers and hooks.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jdziat/durable-training/pkg/core"
)

// Bus delivers core events to channel subscribers and synchronous hooks.
// A nil *Bus is valid and drops everything.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan core.Event
	hooks  []func(context.Context, core.Event)
	logger *slog.Logger
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{logger: slog.Default()}
}

// SetLogger sets the logger used to report panicking hooks.
func (b *Bus) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Subscribe returns a channel receiving every event emitted after the call.
// The caller must call Unsubscribe when done.
func (b *Bus) Subscribe() <-chan core.Event {
	ch := make(chan core.Event, 100)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Subscribe. The channel is not
// closed; no further events are sent to it after Unsubscribe returns.
func (b *Bus) Unsubscribe(ch <-chan core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// OnEvent registers a hook called synchronously for every event.
func (b *Bus) OnEvent(fn func(context.Context, core.Event)) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Emit delivers e. Slow subscribers miss events rather than block the
// emitter; a panicking hook is logged and skipped.
func (b *Bus) Emit(ctx context.Context, e core.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]chan core.Event, len(b.subs))
	copy(subs, b.subs)
	hooks := make([]func(context.Context, core.Event), len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
	for _, fn := range hooks {
		b.callHook(ctx, fn, e)
	}
}

func (b *Bus) callHook(ctx context.Context, fn func(context.Context, core.Event), e core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event hook panicked", "event", e, "panic", r)
		}
	}()
	fn(ctx, e)
}
