package replica

import (
	"fmt"
	"sort"
)

// Replica is an addressable data tree replicated from its authority to a
// set of subscribers. On the authority (a replica created by Server.Create)
// the mutation methods change the tree, fire local listeners and emit the
// operation; on a Client they are read-only and remote operations are
// applied instead.
type Replica struct {
	id       ID
	classTag string
	tags     map[string]interface{}
	data     map[string]interface{}
	target   Target
	hidden   map[string]struct{}

	parent     ID
	parentLink *parentLink
	children   []ID
	pending    []ID

	state State
	// seq is the last operation emitted (authority) or applied (replica).
	seq uint64

	store   *Store
	server  *Server
	cleanup cleanup
}

type parentLink struct {
	parent     ID
	parentTask CleanupHandle
	childTask  CleanupHandle
}

func newReplica(store *Store, id ID, classTag string, data, tags map[string]interface{}, target Target) *Replica {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Replica{
		id:       id,
		classTag: classTag,
		tags:     tags,
		data:     data,
		target:   target,
		store:    store,
	}
}

// ID returns the replica's id.
func (r *Replica) ID() ID {
	return r.id
}

// ClassTag returns the logical type of the replica.
func (r *Replica) ClassTag() string {
	return r.classTag
}

// Tag returns the creation-time metadata value for key.
func (r *Replica) Tag(key string) (interface{}, bool) {
	v, ok := r.tags[key]
	return v, ok
}

// Tags returns a copy of the creation-time metadata.
func (r *Replica) Tags() map[string]interface{} {
	return cloneMap(r.tags)
}

// Target returns the replication target.
func (r *Replica) Target() Target {
	return r.target
}

// State returns the lifecycle stage.
func (r *Replica) State() State {
	return r.state
}

// IsAuthoritative reports whether this copy emits its mutations.
func (r *Replica) IsAuthoritative() bool {
	return r.server != nil
}

// Get returns the value at path; the empty path returns the root map.
// Containers are returned by reference and must not be modified.
func (r *Replica) Get(path string) (interface{}, bool) {
	keys := splitPath(r.store.paths, path)
	if len(keys) == 0 {
		return r.data, true
	}
	p, err := resolvePointer(r.data, keys)
	if err != nil {
		return nil, false
	}
	return p.Get()
}

// Snapshot returns a deep copy of the data tree.
func (r *Replica) Snapshot() map[string]interface{} {
	return cloneMap(r.data)
}

// Parent returns the owning replica, if any.
func (r *Replica) Parent() (*Replica, bool) {
	if r.parent.IsZero() {
		return nil, false
	}
	return r.store.Get(r.parent)
}

// Children returns the owned replicas whose attachment has been flushed, in
// attachment order.
func (r *Replica) Children() []*Replica {
	out := make([]*Replica, 0, len(r.children))
	for _, id := range r.children {
		if c, ok := r.store.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// SetParent makes parent own r. The attachment is announced, and ChildAdded
// fired on parent, at the next flush. Destroying parent destroys r;
// destroying r detaches it from parent.
func (r *Replica) SetParent(parent *Replica) error {
	switch {
	case r.server == nil:
		return ErrReadOnly
	case parent == nil || parent.store != r.store:
		return fmt.Errorf("set parent of %s: %w", r.id, ErrUnknownObject)
	case r.state != StateActive || parent.state != StateActive:
		return fmt.Errorf("set parent of %s: %w", r.id, ErrDestroyed)
	case r.parent == parent.id:
		return nil
	}
	for p := parent; p != nil; p, _ = p.Parent() {
		if p.id == r.id {
			return fmt.Errorf("set parent of %s to %s: %w", r.id, parent.id, ErrCycle)
		}
	}
	r.link(parent)
	if len(parent.hidden) > 0 {
		r.hideFrom(parent.hiddenFrom())
		if r.state != StateActive {
			return nil
		}
	}
	parent.pending = append(parent.pending, r.id)
	r.server.batcher.queueChildren(parent.id)
	return nil
}

// link registers the reciprocal cleanups between r and parent, replacing any
// previous parent.
func (r *Replica) link(parent *Replica) {
	r.unlink()
	r.parent = parent.id
	r.parentLink = &parentLink{
		parent:     parent.id,
		parentTask: parent.cleanup.add(r.destroy),
		childTask:  r.cleanup.add(r.unlink),
	}
}

func (r *Replica) unlink() {
	l := r.parentLink
	if l == nil {
		return
	}
	r.parentLink = nil
	r.parent = NoID
	r.cleanup.remove(l.childTask)
	if p, ok := r.store.Get(l.parent); ok {
		p.cleanup.remove(l.parentTask)
		p.children = removeID(p.children, r.id)
		p.pending = removeID(p.pending, r.id)
	}
}

// attach moves child into r's materialized children and fires ChildAdded.
func (r *Replica) attach(child *Replica) {
	r.children = append(r.children, child.id)
	r.store.listeners.dispatch(r.id, KindChildAdded, rootPath, child)
}

func (r *Replica) hasChild(id ID) bool {
	for _, c := range r.children {
		if c == id {
			return true
		}
	}
	return false
}

// Destroy runs the replica's cleanup tasks, which destroy its children and
// detach it from its parent, and disconnects its listeners. On the authority
// the destruction is announced at the next flush. Destroying twice is a no-op.
func (r *Replica) Destroy() {
	r.destroy()
}

func (r *Replica) destroy() {
	if r.state != StateActive {
		return
	}
	r.state = StatePendingDestruction
	if r.server != nil {
		r.server.batcher.queueDestroy(r.id, r.deliveryTarget())
	}
	r.cleanup.dispose()
	r.store.listeners.teardown(r.id)
	r.store.remove(r.id)
	r.state = StateDestroyed
}

// DestroyFor stops replicating r to the given subscribers. A replica
// targeting All is destroyed outright. A replica with an explicit target is
// destroyed on those subscribers only, and fully once none remain. Its
// descendants are hidden from the same subscribers.
func (r *Replica) DestroyFor(subs ...string) {
	if r.state != StateActive {
		return
	}
	if r.server == nil {
		r.store.warn(r, "DestroyFor", rootPath, ErrReadOnly)
		return
	}
	if r.target.IsAll() {
		r.destroy()
		return
	}
	r.hideFrom(subs)
}

// hideFrom stops delivering r and its descendants to subs, queueing a
// targeted destroy for each subscriber that could see them. A replica with
// an explicit target is destroyed once none of its subscribers remain.
func (r *Replica) hideFrom(subs []string) {
	var gone []string
	for _, sub := range subs {
		if _, hidden := r.hidden[sub]; hidden || !r.target.Includes(sub) {
			continue
		}
		visible := r.visibleTo(sub)
		if r.hidden == nil {
			r.hidden = map[string]struct{}{}
		}
		r.hidden[sub] = struct{}{}
		if visible {
			gone = append(gone, sub)
		}
	}
	if len(gone) > 0 {
		r.server.batcher.queueDestroyFor(r.id, gone)
	}
	for _, id := range append(append([]ID(nil), r.children...), r.pending...) {
		if c, ok := r.store.Get(id); ok && c.state == StateActive {
			c.hideFrom(subs)
		}
	}
	if !r.target.IsAll() && r.deliveryTarget().IsEmpty() {
		r.destroy()
	}
}

func (r *Replica) hiddenFrom() []string {
	out := make([]string, 0, len(r.hidden))
	for sub := range r.hidden {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out
}

// deliveryTarget is the target minus the subscribers r was destroyed for.
// An All target with hidden subscribers narrows to the current subscribers.
func (r *Replica) deliveryTarget() Target {
	if r.target.IsAll() && len(r.hidden) > 0 && r.server != nil {
		return Only(r.server.Subscribers()...).without(r.hidden)
	}
	return r.target.without(r.hidden)
}

// visibleTo reports whether operations of r reach sub.
func (r *Replica) visibleTo(sub string) bool {
	if _, hidden := r.hidden[sub]; hidden {
		return false
	}
	if r.target.IsAll() && r.server != nil {
		_, ok := r.server.subscribers[sub]
		return ok
	}
	return r.target.Includes(sub)
}

// AddCleanupTask runs task when the replica is destroyed. Tasks run most
// recently added first; a task added to a destroyed replica runs at once.
func (r *Replica) AddCleanupTask(task func()) CleanupHandle {
	return r.cleanup.add(task)
}

// RemoveCleanupTask cancels a task added with AddCleanupTask.
func (r *Replica) RemoveCleanupTask(h CleanupHandle) bool {
	return r.cleanup.remove(h)
}

func (r *Replica) subscribe(kind Kind, path string, fn func(Event)) *Subscription {
	if r.state == StateDestroyed || r.state == StatePendingDestruction {
		return &Subscription{}
	}
	return r.store.listeners.subscribe(r.id, kind, path, fn)
}

// OnChange calls fn with the new and previous values whenever the value at
// path is set.
func (r *Replica) OnChange(path string, fn func(newValue, oldValue interface{})) *Subscription {
	return r.subscribe(KindChange, path, func(ev Event) { fn(ev.Args[0], ev.Args[1]) })
}

// OnNewKey calls fn when a value is set at a previously absent path.
func (r *Replica) OnNewKey(path string, fn func(value interface{})) *Subscription {
	return r.subscribe(KindNewKey, path, func(ev Event) { fn(ev.Args[0]) })
}

// OnArrayInsert calls fn with the new length and the appended value.
func (r *Replica) OnArrayInsert(path string, fn func(newLength int, value interface{})) *Subscription {
	return r.subscribe(KindArrayInsert, path, func(ev Event) { fn(ev.Args[0].(int), ev.Args[1]) })
}

// OnArraySet calls fn with the 1-based index and the value stored there.
func (r *Replica) OnArraySet(path string, fn func(index int, value interface{})) *Subscription {
	return r.subscribe(KindArraySet, path, func(ev Event) { fn(ev.Args[0].(int), ev.Args[1]) })
}

// OnArrayRemove calls fn with the 1-based index and the removed value.
func (r *Replica) OnArrayRemove(path string, fn func(index int, removed interface{})) *Subscription {
	return r.subscribe(KindArrayRemove, path, func(ev Event) { fn(ev.Args[0].(int), ev.Args[1]) })
}

// OnChildAdded calls fn when a child's attachment is flushed.
func (r *Replica) OnChildAdded(fn func(child *Replica)) *Subscription {
	return r.subscribe(KindChildAdded, rootPath, func(ev Event) { fn(ev.Args[0].(*Replica)) })
}

// OnRaw calls fn for every event of the replica, whatever its path, before
// the kind-specific listeners.
func (r *Replica) OnRaw(fn func(Event)) *Subscription {
	return r.subscribe(KindRaw, rootPath, fn)
}

func (r *Replica) String() string {
	return fmt.Sprintf("%s(%s)", r.classTag, r.id)
}

func removeID(ids []ID, id ID) []ID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
