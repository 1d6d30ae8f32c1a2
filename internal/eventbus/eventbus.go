// Package eventbus dispatches in-process events by their Go type.
//
// The server, executor and services publish the values of package events; telemetry
// and logging subscribe to them. Publishing without an installed bus is a no-op.
package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is an in-process event dispatcher. Handlers run synchronously on the
// publishing goroutine in subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[reflect.Type][]subscription
}

// New creates an empty Bus.
func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]subscription)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[t]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.handlers, t)
			} else {
				b.handlers[t] = subs
			}
		})
	}
}

func (b *Bus) emit(ctx context.Context, t reflect.Type, e any) {
	b.mu.RLock()
	subs := b.handlers[t]
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(ctx, e)
	}
}

// On registers h on b for events of type T.
func On[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	return b.subscribe(typeOf[T](), func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Emit sends e to the handlers registered on b.
func Emit[T any](ctx context.Context, b *Bus, e T) {
	if b == nil {
		return
	}
	b.emit(ctx, typeOf[T](), e)
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

var global atomic.Pointer[Bus]

// Use sets the global bus. Passing nil disables event publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	if b := global.Load(); b != nil {
		return On(b, h)
	}
	return func() {}
}

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	Emit(ctx, global.Load(), e)
}
