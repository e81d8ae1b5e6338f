package replica

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Params are the construction parameters of an authoritative replica.
type Params struct {
	// ClassTag groups replicas by logical type. Required.
	ClassTag string
	// Data is the initial tree; nil means an empty map. The replica takes
	// ownership of it.
	Data map[string]interface{}
	// Tags is immutable metadata.
	Tags map[string]interface{}
	// Target is who the replica is replicated to. Required.
	Target Target
}

// Server is the authoritative role: it creates replicas, emits their
// operations and flushes lifecycle batches.
type Server struct {
	store       *Store
	transport   Transport
	batcher     batcher
	subscribers map[string]struct{}
	cfg         Config
}

// NewServer creates an authority sending through t.
func NewServer(t Transport, cfg Config) *Server {
	cfg.validate()
	return &Server{
		store:       newStore(RoleAuthority, cfg),
		transport:   t,
		subscribers: map[string]struct{}{},
		cfg:         cfg,
	}
}

// Store returns the authority's replicas.
func (s *Server) Store() *Store {
	return s.store
}

// Create registers a new replica, announces it to its target and notifies
// OnCreated listeners of its class.
func (s *Server) Create(p Params) (*Replica, error) {
	if p.ClassTag == "" {
		return nil, ErrMissingClassTag
	}
	if p.Target.IsZero() {
		return nil, fmt.Errorf("create %s: %w", p.ClassTag, ErrMissingTarget)
	}
	r := newReplica(s.store, newID(), p.ClassTag, p.Data, cloneMap(p.Tags), p.Target)
	r.server = s
	s.store.add(r)
	s.send(r.deliveryTarget(), Message{Kind: MessageCreate, Create: r.creation()})
	r.state = StateActive
	s.store.announce(r)
	return r, nil
}

// MustCreate is like Create but panics on malformed parameters.
func (s *Server) MustCreate(p Params) *Replica {
	r, err := s.Create(p)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Replica) creation() *Creation {
	return &Creation{
		ID:       r.id,
		ClassTag: r.classTag,
		Data:     r.data,
		Tags:     r.tags,
		Seq:      r.seq,
	}
}

// Start flushes on the configured period until the returned func is called.
func (s *Server) Start(sched Scheduler) (stop func()) {
	return sched.Every(s.cfg.FlushPeriod, s.Flush)
}

// Flush transmits the lifecycle batches queued since the last flush: one
// children message per parent with new children (ChildAdded then fires on
// the parent for each), then one message for all destructions.
func (s *Server) Flush() {
	for _, pid := range s.batcher.takeParents() {
		p, ok := s.store.Get(pid)
		if !ok || p.state != StateActive || len(p.pending) == 0 {
			continue
		}
		batch := p.pending
		p.pending = nil
		s.send(p.deliveryTarget(), Message{Kind: MessageChildren, Parent: pid, Children: batch})
		s.cfg.Metrics.flushed("children")
		for _, cid := range batch {
			c, ok := s.store.Get(cid)
			if !ok || c.parent != pid || p.hasChild(cid) {
				continue
			}
			p.attach(c)
		}
	}
	if ids, to := s.batcher.takeDestroyed(); len(ids) > 0 {
		s.send(to, Message{Kind: MessageDestroy, Destroyed: ids})
		s.cfg.Metrics.flushed("destroy")
		s.store.logger.Debug("flushed destructions", zap.Int("count", len(ids)), zap.Stringer("to", to))
	}
	targeted := s.batcher.takeDestroyFor()
	subs := make([]string, 0, len(targeted))
	for sub := range targeted {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	for _, sub := range subs {
		s.send(Only(sub), Message{Kind: MessageDestroy, Destroyed: targeted[sub]})
		s.cfg.Metrics.flushed("destroy_for")
	}
}

// AddSubscriber brings a newly joined subscriber up to date: every live
// replica visible to it is created there, in creation order, followed by
// the replicas' current children.
func (s *Server) AddSubscriber(sub string) {
	s.subscribers[sub] = struct{}{}
	to := Only(sub)
	var parents []*Replica
	for _, r := range s.store.Replicas() {
		if r.state != StateActive || !r.visibleTo(sub) {
			continue
		}
		s.send(to, Message{Kind: MessageCreate, Create: r.creation()})
		if len(r.children) > 0 {
			parents = append(parents, r)
		}
	}
	for _, p := range parents {
		var visible []ID
		for _, c := range p.Children() {
			if c.visibleTo(sub) {
				visible = append(visible, c.id)
			}
		}
		if len(visible) > 0 {
			s.send(to, Message{Kind: MessageChildren, Parent: p.id, Children: visible})
		}
	}
	s.store.logger.Debug("subscriber added", zap.String("subscriber", sub))
}

// RemoveSubscriber forgets sub.
func (s *Server) RemoveSubscriber(sub string) {
	delete(s.subscribers, sub)
}

// Subscribers returns the subscribers added and not removed, sorted.
func (s *Server) Subscribers() []string {
	out := make([]string, 0, len(s.subscribers))
	for sub := range s.subscribers {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out
}

func (s *Server) emit(r *Replica, op *Operation) {
	r.seq++
	op.ID = r.id
	op.Seq = r.seq
	s.send(r.deliveryTarget(), Message{Kind: MessageOperation, Op: op})
	s.cfg.Metrics.sent(op.Code)
}

func (s *Server) send(to Target, msg Message) {
	if to.IsEmpty() {
		return
	}
	if err := s.transport.Send(to, msg); err != nil {
		s.store.logger.Warn("send failed",
			zap.Stringer("kind", msg.Kind),
			zap.Stringer("to", to),
			zap.Error(err),
		)
	}
}
