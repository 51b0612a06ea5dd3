package testutil

import (
	"context"
	"sync"

	"github.com/kasuganosora/kadim/server/events"
)

// Published is one event captured by Events.
type Published struct {
	Type       events.Type
	Data       any
	Recipients []int64
}

// Events is an events.Publisher that records everything it is given.
type Events struct {
	mu  sync.Mutex
	got []Published
}

func (e *Events) Publish(_ context.Context, typ events.Type, data any, recipients ...int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, Published{Type: typ, Data: data, Recipients: recipients})
}

// All returns a copy of the recorded events.
func (e *Events) All() []Published {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Published(nil), e.got...)
}

// Types returns the recorded event types in order.
func (e *Events) Types() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, len(e.got))
	for i, p := range e.got {
		out[i] = p.Type
	}
	return out
}

// Last returns the most recent event of typ, or false.
func (e *Events) Last(typ events.Type) (Published, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.got) - 1; i >= 0; i-- {
		if e.got[i].Type == typ {
			return e.got[i], true
		}
	}
	return Published{}, false
}
