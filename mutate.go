package replica

import (
	"fmt"
	"sort"
)

// SetValue stores value at path. NewKey fires if path was absent, then
// Change fires with the new and previous values. A missing intermediate
// container makes the call inert.
func (r *Replica) SetValue(path string, value interface{}) {
	if !r.writable("SetValue", path) {
		return
	}
	r.applySetValue(&Operation{Code: OpSetValue, Path: path, Value: value})
}

// SetValues stores every entry of values into the map at path. For each key,
// in sorted order, NewKey fires if it was absent, then Change fires at
// path.key.
func (r *Replica) SetValues(path string, values map[string]interface{}) {
	if !r.writable("SetValues", path) {
		return
	}
	r.applySetValues(&Operation{Code: OpSetValues, Path: path, Values: values})
}

// ArrayInsert appends value to the sequence at path and returns its new
// length, or 0 if path doesn't name a sequence.
func (r *Replica) ArrayInsert(path string, value interface{}) int {
	if !r.writable("ArrayInsert", path) {
		return 0
	}
	n, _ := r.applyArrayInsert(&Operation{Code: OpArrayInsert, Path: path, Value: value})
	return n
}

// ArraySet replaces the value at the 1-based index of the sequence at path
// and returns index. An index with no existing value makes the call inert
// and returns 0.
func (r *Replica) ArraySet(path string, index int, value interface{}) int {
	if !r.writable("ArraySet", path) {
		return 0
	}
	if !r.applyArraySet(&Operation{Code: OpArraySet, Path: path, Index: index, Value: value}) {
		return 0
	}
	return index
}

// ArrayRemove removes the value at the 1-based index of the sequence at
// path, shifting later values down, and returns it. ok is false if there
// was no value at index.
func (r *Replica) ArrayRemove(path string, index int) (removed interface{}, ok bool) {
	if !r.writable("ArrayRemove", path) {
		return nil, false
	}
	return r.applyArrayRemove(&Operation{Code: OpArrayRemove, Path: path, Index: index})
}

func (r *Replica) writable(op, path string) bool {
	switch {
	case r.server == nil:
		r.store.warn(r, op, path, ErrReadOnly)
		return false
	case r.state != StateActive:
		r.store.warn(r, op, path, ErrDestroyed)
		return false
	}
	return true
}

// apply runs a remote operation.
func (r *Replica) apply(op *Operation) bool {
	switch op.Code {
	case OpSetValue:
		return r.applySetValue(op)
	case OpSetValues:
		return r.applySetValues(op)
	case OpArrayInsert:
		_, ok := r.applyArrayInsert(op)
		return ok
	case OpArraySet:
		return r.applyArraySet(op)
	case OpArrayRemove:
		_, ok := r.applyArrayRemove(op)
		return ok
	}
	r.store.warn(r, op.Code.String(), op.Path, fmt.Errorf("%w: %s", ErrUnknownMessage, op.Code))
	return false
}

// commit hands an applied operation to the transport. It runs after the tree
// is changed and before listeners fire, so operations a listener triggers
// are transmitted after the one that triggered them.
func (r *Replica) commit(op *Operation) {
	if r.server != nil {
		r.server.emit(r, op)
	}
}

func (r *Replica) dispatch(kind Kind, path string, args ...interface{}) {
	r.store.listeners.dispatch(r.id, kind, path, args...)
}

func (r *Replica) keys(path string) []string {
	return splitPath(r.store.paths, path)
}

func (r *Replica) applySetValue(op *Operation) bool {
	ptr, err := resolvePointer(r.data, r.keys(op.Path))
	if err == nil && len(r.keys(op.Path)) == 0 {
		err = fmt.Errorf("%w: cannot replace the root", ErrPathNotFound)
	}
	if err != nil {
		r.store.warn(r, op.Code.String(), op.Path, err)
		return false
	}
	old, present := ptr.Get()
	if !ptr.Set(op.Value) {
		r.store.warn(r, op.Code.String(), op.Path, fmt.Errorf("%w: %q", ErrInvalidIndex, ptr.Key))
		return false
	}
	r.commit(op)
	if !present {
		r.dispatch(KindNewKey, op.Path, op.Value)
	}
	r.dispatch(KindChange, op.Path, op.Value, old)
	return true
}

func (r *Replica) applySetValues(op *Operation) bool {
	c, err := resolveContainer(r.data, r.keys(op.Path))
	if err != nil {
		r.store.warn(r, op.Code.String(), op.Path, err)
		return false
	}
	m, ok := c.(map[string]interface{})
	if !ok {
		r.store.warn(r, op.Code.String(), op.Path, ErrNotMap)
		return false
	}
	type change struct {
		key      string
		old      interface{}
		wasThere bool
	}
	keys := make([]string, 0, len(op.Values))
	for k := range op.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	changes := make([]change, len(keys))
	for i, k := range keys {
		old, present := m[k]
		changes[i] = change{k, old, present}
		m[k] = op.Values[k]
	}
	r.commit(op)
	for _, ch := range changes {
		p := JoinPath(op.Path, ch.key)
		v := op.Values[ch.key]
		if !ch.wasThere {
			r.dispatch(KindNewKey, p, v)
		}
		r.dispatch(KindChange, p, v, ch.old)
	}
	return true
}

// sequence resolves the sequence named by op.Path.
func (r *Replica) sequence(op *Operation) (Pointer, []interface{}, bool) {
	keys := r.keys(op.Path)
	ptr, err := resolvePointer(r.data, keys)
	if err == nil && len(keys) == 0 {
		err = ErrNotSequence
	}
	if err != nil {
		r.store.warn(r, op.Code.String(), op.Path, err)
		return Pointer{}, nil, false
	}
	v, _ := ptr.Get()
	seq, ok := v.([]interface{})
	if !ok {
		r.store.warn(r, op.Code.String(), op.Path, ErrNotSequence)
		return Pointer{}, nil, false
	}
	return ptr, seq, true
}

func (r *Replica) applyArrayInsert(op *Operation) (int, bool) {
	ptr, seq, ok := r.sequence(op)
	if !ok {
		return 0, false
	}
	seq = append(seq, op.Value)
	ptr.Set(seq)
	n := len(seq)
	r.commit(op)
	r.dispatch(KindArrayInsert, op.Path, n, op.Value)
	return n, true
}

func (r *Replica) applyArraySet(op *Operation) bool {
	_, seq, ok := r.sequence(op)
	if !ok {
		return false
	}
	if op.Index < 1 || op.Index > len(seq) {
		r.store.warn(r, op.Code.String(), op.Path, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, op.Index, len(seq)))
		return false
	}
	seq[op.Index-1] = op.Value
	r.commit(op)
	r.dispatch(KindArraySet, op.Path, op.Index, op.Value)
	return true
}

func (r *Replica) applyArrayRemove(op *Operation) (interface{}, bool) {
	ptr, seq, ok := r.sequence(op)
	if !ok {
		return nil, false
	}
	if op.Index < 1 || op.Index > len(seq) {
		r.store.warn(r, op.Code.String(), op.Path, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, op.Index, len(seq)))
		return nil, false
	}
	removed := seq[op.Index-1]
	copy(seq[op.Index-1:], seq[op.Index:])
	seq[len(seq)-1] = nil
	seq = seq[:len(seq)-1]
	ptr.Set(seq)
	r.commit(op)
	r.dispatch(KindArrayRemove, op.Path, op.Index, removed)
	return removed, true
}
