package cync

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Subscription identifies one registered state-change callback.
type Subscription uuid.UUID

// String returns the token in canonical uuid form.
func (s Subscription) String() string {
	return uuid.UUID(s).String()
}

// Observers is the state-change callback list owned by a device.
// Each subscriber holds its own token, so releasing one subscription never
// affects another.
type Observers struct {
	mu    sync.RWMutex
	subs  map[Subscription]func()
	order []Subscription
}

// Subscribe registers fn and returns its token.
func (o *Observers) Subscribe(fn func()) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.subs == nil {
		o.subs = make(map[Subscription]func())
	}
	token := Subscription(uuid.New())
	o.subs[token] = fn
	o.order = append(o.order, token)
	return token
}

// Unsubscribe releases token. It returns false if the token is unknown.
func (o *Observers) Unsubscribe(token Subscription) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.subs[token]; !ok {
		return false
	}
	delete(o.subs, token)
	for i, t := range o.order {
		if t == token {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of active subscriptions.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

// Notify calls every subscriber in registration order. Callbacks run
// outside the lock and a panicking callback does not stop the others.
func (o *Observers) Notify() {
	o.mu.RLock()
	fns := make([]func(), 0, len(o.order))
	for _, t := range o.order {
		fns = append(fns, o.subs[t])
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("State-change callback panicked")
				}
			}()
			fn()
		}()
	}
}
