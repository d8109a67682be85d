// Package events fans moderation domain events out to in-process
// subscribers. Delivery to moderators (websocket, push, whatever sits on the
// other side) is someone else's problem; subscribers that fall behind lose
// events rather than blocking the emitter.
package events

import (
	"log/slog"
	"time"
)

// PublicationEvent describes a moderation lifecycle change on a publication.
type PublicationEvent struct {
	Publication string    `json:"publication"`
	Status      string    `json:"status"`
	ReportCount int64     `json:"reportCount"`
	Time        time.Time `json:"time"`
}

type EventManager struct {
	subs []*Subscriber

	ops        chan *operation
	closed     chan struct{}
	bufferSize int

	logger *slog.Logger
}

func NewEventManager(logger *slog.Logger) *EventManager {
	return &EventManager{
		ops:        make(chan *operation),
		closed:     make(chan struct{}),
		bufferSize: 256,
		logger:     logger.With("component", "events"),
	}
}

const (
	opSubscribe = iota
	opUnsubscribe
	opSend
)

type operation struct {
	op  int
	sub *Subscriber
	evt *PublicationEvent
}

// Run processes subscriptions and event sends until Shutdown. Must be
// running for Emit to do anything.
func (em *EventManager) Run() {
	for {
		var op *operation
		select {
		case op = <-em.ops:
		case <-em.closed:
			for _, s := range em.subs {
				close(s.outgoing)
			}
			em.subs = nil
			return
		}

		switch op.op {
		case opSubscribe:
			em.subs = append(em.subs, op.sub)
		case opUnsubscribe:
			for i, s := range em.subs {
				if s == op.sub {
					em.subs[i] = em.subs[len(em.subs)-1]
					em.subs = em.subs[:len(em.subs)-1]
					close(s.outgoing)
					break
				}
			}
		case opSend:
			for _, s := range em.subs {
				if !s.filter(op.evt) {
					continue
				}
				select {
				case s.outgoing <- op.evt:
				default:
					em.logger.Warn("event overflow, dropping", "publication", op.evt.Publication)
				}
			}
		}
	}
}

func (em *EventManager) Shutdown() {
	close(em.closed)
}

// Emit delivers evt to all current subscribers. Safe to call from any
// goroutine; a no-op after Shutdown.
func (em *EventManager) Emit(evt *PublicationEvent) {
	select {
	case em.ops <- &operation{op: opSend, evt: evt}:
	case <-em.closed:
	}
}

type Subscriber struct {
	outgoing chan *PublicationEvent
	filter   func(*PublicationEvent) bool
}

// Events is the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan *PublicationEvent {
	return s.outgoing
}

// Subscribe registers a new subscriber. A nil filter receives everything.
func (em *EventManager) Subscribe(filter func(*PublicationEvent) bool) *Subscriber {
	if filter == nil {
		filter = func(*PublicationEvent) bool { return true }
	}
	sub := &Subscriber{
		outgoing: make(chan *PublicationEvent, em.bufferSize),
		filter:   filter,
	}
	select {
	case em.ops <- &operation{op: opSubscribe, sub: sub}:
	case <-em.closed:
		close(sub.outgoing)
	}
	return sub
}

func (em *EventManager) Unsubscribe(sub *Subscriber) {
	select {
	case em.ops <- &operation{op: opUnsubscribe, sub: sub}:
	case <-em.closed:
	}
}
