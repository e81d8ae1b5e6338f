package replica

// signal is an ordered set of callbacks fired together.
type signal struct {
	slots []*slot
}

type slot struct {
	fn   func(Event)
	dead bool
}

func (s *signal) connect(fn func(Event)) *slot {
	sl := &slot{fn: fn}
	s.slots = append(s.slots, sl)
	return sl
}

func (s *signal) disconnect(sl *slot) {
	if sl.dead {
		return
	}
	sl.dead = true
	for i, x := range s.slots {
		if x == sl {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			return
		}
	}
}

func (s *signal) disconnectAll() {
	for _, sl := range s.slots {
		sl.dead = true
	}
	s.slots = nil
}

func (s *signal) empty() bool {
	return len(s.slots) == 0
}

// fire calls the connected callbacks in connection order. Callbacks may
// connect and disconnect while firing: later connections wait for the next
// fire, disconnections take effect immediately.
func (s *signal) fire(ev Event) {
	if len(s.slots) == 0 {
		return
	}
	slots := append([]*slot(nil), s.slots...)
	for _, sl := range slots {
		if !sl.dead {
			sl.fn(ev)
		}
	}
}

// Subscription is the handle of a listener. Unsubscribe is idempotent and
// safe to call on a handle whose replica is gone.
type Subscription struct {
	cancel func()
}

// Unsubscribe stops future deliveries to the listener.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	cancel := s.cancel
	s.cancel = nil
	cancel()
}
