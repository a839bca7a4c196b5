// Package progress carries per-step trading loss notifications out of transaction composition.
package progress

import (
	"sync"
	"time"
)

// Sink receives a step key and the USD delta of that step; negative values are losses
type Sink func(key string, deltaUSD float64)

// Noop discards every event
func Noop(string, float64) {}

// Or returns s, or Noop when s is nil
func Or(s Sink) Sink {
	if s == nil {
		return Noop
	}
	return s
}

// Event is one reported step
type Event struct {
	Key      string    `json:"key"`
	DeltaUSD float64   `json:"deltaUsd"`
	At       time.Time `json:"at"`
}

// Recorder collects events for inclusion in a response
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Sink returns a Sink appending to the recorder
func (r *Recorder) Sink() Sink {
	return func(key string, delta float64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, Event{Key: key, DeltaUSD: delta, At: time.Now().UTC()})
	}
}

// Events returns a copy of the recorded events in arrival order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Total sums every recorded delta
func (r *Recorder) Total() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, e := range r.events {
		total += e.DeltaUSD
	}
	return total
}

// Tee fans an event out to every non-nil sink
func Tee(sinks ...Sink) Sink {
	return func(key string, delta float64) {
		for _, s := range sinks {
			if s != nil {
				s(key, delta)
			}
		}
	}
}
