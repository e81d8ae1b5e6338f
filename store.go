package replica

import (
	"go.uber.org/zap"
)

// Store maps ids to the replicas of one process role. It is the only place
// replicas are looked up for incoming remote operations. A Store, like the
// replicas it holds, is confined to one goroutine (see Loop).
type Store struct {
	role      Role
	objects   map[ID]*Replica
	listeners *listenerRegistry
	created   map[string]*signal
	paths     PathCache
	logger    *zap.Logger
	metrics   *Metrics
}

func newStore(role Role, cfg Config) *Store {
	s := &Store{
		role:      role,
		objects:   map[ID]*Replica{},
		listeners: newListenerRegistry(),
		created:   map[string]*signal{},
		logger:    cfg.Logger.With(zap.Stringer("role", role)),
		metrics:   cfg.Metrics,
	}
	if cfg.PathCacheSize > 0 {
		s.paths = NewPathCache(cfg.PathCacheSize)
	}
	return s
}

// Role returns the part this store plays.
func (s *Store) Role() Role {
	return s.role
}

// Get returns the registered replica with the given id.
func (s *Store) Get(id ID) (*Replica, bool) {
	r, ok := s.objects[id]
	return r, ok
}

// Len returns the number of registered replicas.
func (s *Store) Len() int {
	return len(s.objects)
}

// Replicas returns the registered replicas in creation order.
func (s *Store) Replicas() []*Replica {
	ids := make([]ID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sortIDs(ids)
	out := make([]*Replica, len(ids))
	for i, id := range ids {
		out[i] = s.objects[id]
	}
	return out
}

// OnCreated calls fn for every active replica of the given class, first for
// those that already exist (in creation order, before OnCreated returns),
// then for each one created afterwards.
func (s *Store) OnCreated(classTag string, fn func(*Replica)) *Subscription {
	for _, r := range s.Replicas() {
		if r.classTag == classTag && r.state == StateActive {
			fn(r)
		}
	}
	sig, ok := s.created[classTag]
	if !ok {
		sig = &signal{}
		s.created[classTag] = sig
	}
	sl := sig.connect(func(ev Event) { fn(ev.Args[0].(*Replica)) })
	return &Subscription{cancel: func() {
		sig.disconnect(sl)
		if sig.empty() && s.created[classTag] == sig {
			delete(s.created, classTag)
		}
	}}
}

func (s *Store) add(r *Replica) {
	s.objects[r.id] = r
	s.metrics.live(s.role, 1)
}

func (s *Store) remove(id ID) {
	if _, ok := s.objects[id]; !ok {
		return
	}
	delete(s.objects, id)
	s.metrics.live(s.role, -1)
}

func (s *Store) announce(r *Replica) {
	if sig := s.created[r.classTag]; sig != nil {
		sig.fire(Event{Path: rootPath, Args: []interface{}{r}})
	}
}

// warn logs an inert operation.
func (s *Store) warn(r *Replica, op, path string, err error) {
	s.metrics.dropped(dropReason(err))
	fields := []zap.Field{zap.String("op", op), zap.String("path", path), zap.Error(err)}
	if r != nil {
		fields = append(fields, zap.Stringer("replica", r.id), zap.String("class", r.classTag))
	}
	s.logger.Warn("operation ignored", fields...)
}
