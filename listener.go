package replica

type bucketKey struct {
	kind Kind
	path string
}

// listenerRegistry holds the listeners of every replica of a Store, keyed by
// replica, event kind and path.
type listenerRegistry struct {
	objects map[ID]map[bucketKey]*signal
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{objects: map[ID]map[bucketKey]*signal{}}
}

func (r *listenerRegistry) subscribe(id ID, kind Kind, path string, fn func(Event)) *Subscription {
	buckets, ok := r.objects[id]
	if !ok {
		buckets = map[bucketKey]*signal{}
		r.objects[id] = buckets
	}
	key := bucketKey{kind, path}
	sig, ok := buckets[key]
	if !ok {
		sig = &signal{}
		buckets[key] = sig
	}
	sl := sig.connect(fn)
	return &Subscription{cancel: func() {
		sig.disconnect(sl)
		if !sig.empty() {
			return
		}
		// the bucket may have been replaced by a teardown and a resubscription
		if b := r.objects[id]; b != nil && b[key] == sig {
			delete(b, key)
			if len(b) == 0 {
				delete(r.objects, id)
			}
		}
	}}
}

// dispatch fires the replica's Raw listeners, then the listeners of the
// event's kind and path. Missing buckets are no-ops.
func (r *listenerRegistry) dispatch(id ID, kind Kind, path string, args ...interface{}) {
	ev := Event{Kind: kind, Path: path, Args: args}
	if raw := r.objects[id][bucketKey{KindRaw, rootPath}]; raw != nil {
		raw.fire(ev)
	}
	if sig := r.objects[id][bucketKey{kind, path}]; sig != nil {
		sig.fire(ev)
	}
}

// teardown disconnects every listener of the replica.
func (r *listenerRegistry) teardown(id ID) {
	for _, sig := range r.objects[id] {
		sig.disconnectAll()
	}
	delete(r.objects, id)
}

// count returns the number of listeners attached to the replica.
func (r *listenerRegistry) count(id ID) int {
	n := 0
	for _, sig := range r.objects[id] {
		n += len(sig.slots)
	}
	return n
}
