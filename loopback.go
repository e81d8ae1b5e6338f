package replica

import (
	"fmt"
	"sync"
)

// Loopback is an in-process Transport hub connecting one authority end to
// any number of subscriber ends. Messages are copied on Send and queued
// until Pump, which makes delivery deterministic; it is used for testing
// and for hosts running both roles in one process.
type Loopback struct {
	mu      sync.Mutex
	server  *loopbackEnd
	clients map[string]*loopbackEnd
	order   []string
	queue   []delivery
}

type delivery struct {
	to   *loopbackEnd
	from string
	msg  Message
}

type loopbackEnd struct {
	hub      *Loopback
	name     string
	handlers map[MessageKind]Handler
	isServer bool
}

// NewLoopback creates an empty hub.
func NewLoopback() *Loopback {
	l := &Loopback{clients: map[string]*loopbackEnd{}}
	l.server = &loopbackEnd{hub: l, handlers: map[MessageKind]Handler{}, isServer: true}
	return l
}

// Server returns the authority's end of the hub.
func (l *Loopback) Server() Transport {
	return l.server
}

// Connect returns the end of subscriber sub, creating it if needed.
func (l *Loopback) Connect(sub string) Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[sub]; ok {
		return c
	}
	c := &loopbackEnd{hub: l, name: sub, handlers: map[MessageKind]Handler{}}
	l.clients[sub] = c
	l.order = append(l.order, sub)
	return c
}

// Disconnect removes subscriber sub; messages already queued for it are dropped.
func (l *Loopback) Disconnect(sub string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[sub]
	if !ok {
		return
	}
	delete(l.clients, sub)
	for i, s := range l.order {
		if s == sub {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
	kept := l.queue[:0]
	for _, d := range l.queue {
		if d.to != c {
			kept = append(kept, d)
		}
	}
	l.queue = kept
}

// Pending returns the number of queued deliveries.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Pump delivers queued messages in order, including those sent by handlers
// while pumping, and returns how many were delivered.
func (l *Loopback) Pump() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		d := l.queue[0]
		l.queue = l.queue[1:]
		h := d.to.handlers[d.msg.Kind]
		l.mu.Unlock()
		n++
		if h != nil {
			h(d.from, d.msg)
		}
	}
}

func (e *loopbackEnd) Handle(kind MessageKind, h Handler) {
	e.hub.mu.Lock()
	e.handlers[kind] = h
	e.hub.mu.Unlock()
}

func (e *loopbackEnd) Send(to Target, msg Message) error {
	l := e.hub
	l.mu.Lock()
	defer l.mu.Unlock()
	if !e.isServer {
		if _, ok := l.clients[e.name]; !ok {
			return fmt.Errorf("loopback send from %q: disconnected", e.name)
		}
		l.queue = append(l.queue, delivery{to: l.server, from: e.name, msg: CloneMessage(msg)})
		return nil
	}
	for _, sub := range l.order {
		if to.Includes(sub) {
			l.queue = append(l.queue, delivery{to: l.clients[sub], msg: CloneMessage(msg)})
		}
	}
	return nil
}
