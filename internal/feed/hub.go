// Package feed fans change notifications out to subscribers of a session.
// Notifications carry no state; subscribers re-read the snapshot.
package feed

import (
	"context"
	"sync"

	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type subscriber struct {
	ch chan game.Change
}

// Hub is an in-process publish/subscribe keyed by session code.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	all    map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		all:    make(map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of changes for code and a cancel func. An empty
// code subscribes to every session. Cancel closes the channel.
func (h *Hub) Subscribe(code string) (<-chan game.Change, func()) {
	sub := &subscriber{ch: make(chan game.Change, h.buffer)}
	h.mu.Lock()
	if code == "" {
		h.all[sub] = struct{}{}
	} else {
		if h.subs[code] == nil {
			h.subs[code] = make(map[*subscriber]struct{})
		}
		h.subs[code][sub] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if code == "" {
				delete(h.all, sub)
			} else if set := h.subs[code]; set != nil {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, code)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Subscribers returns the number of live subscriptions for code.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[code])
}

// Notify delivers c to every subscriber of its session without blocking. A
// subscriber whose queue is full misses this change.
func (h *Hub) Notify(_ context.Context, c game.Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	deliver := func(sub *subscriber) {
		select {
		case sub.ch <- c:
		default:
			log.Debug().Str("code", c.Code).Str("action", c.Action).Msg("feed subscriber slow, change dropped")
		}
	}
	for sub := range h.subs[c.Code] {
		deliver(sub)
	}
	for sub := range h.all {
		deliver(sub)
	}
	return nil
}
