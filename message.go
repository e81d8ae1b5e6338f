package replica

import (
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
)

// ID identifies a replica. IDs are assigned by the authority, are monotonic
// within a process and are never reused.
type ID ulid.ULID

// NoID is the zero ID, used for "no parent".
var NoID ID

func newID() ID {
	return ID(ulid.Make())
}

// ParseID parses the string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return NoID, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return ulid.ULID(id).String()
}

// IsZero reports whether id is NoID.
func (id ID) IsZero() bool {
	return id == NoID
}

// Compare orders IDs by creation.
func (id ID) Compare(other ID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

// Target is the set of subscribers a replica's events are delivered to:
// every subscriber, or an explicit set of subscriber identities.
type Target struct {
	all  bool
	subs map[string]struct{}
}

// All targets every current subscriber.
func All() Target {
	return Target{all: true}
}

// Only targets the given subscribers.
func Only(subs ...string) Target {
	t := Target{subs: make(map[string]struct{}, len(subs))}
	for _, s := range subs {
		t.subs[s] = struct{}{}
	}
	return t
}

// IsAll reports whether t targets every subscriber.
func (t Target) IsAll() bool {
	return t.all
}

// IsZero reports whether t was never set.
func (t Target) IsZero() bool {
	return !t.all && t.subs == nil
}

// IsEmpty reports whether t reaches nobody.
func (t Target) IsEmpty() bool {
	return !t.all && len(t.subs) == 0
}

// Includes reports whether sub is reached by t.
func (t Target) Includes(sub string) bool {
	if t.all {
		return true
	}
	_, ok := t.subs[sub]
	return ok
}

// Subscribers returns the explicit subscribers, sorted. It is nil for All.
func (t Target) Subscribers() []string {
	if t.all {
		return nil
	}
	out := make([]string, 0, len(t.subs))
	for s := range t.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (t Target) union(o Target) Target {
	if t.all || o.all {
		return All()
	}
	u := Only(t.Subscribers()...)
	for s := range o.subs {
		u.subs[s] = struct{}{}
	}
	return u
}

func (t Target) without(hidden map[string]struct{}) Target {
	if t.all || len(hidden) == 0 {
		return t
	}
	out := Only()
	for s := range t.subs {
		if _, gone := hidden[s]; !gone {
			out.subs[s] = struct{}{}
		}
	}
	return out
}

func (t Target) String() string {
	if t.all {
		return "all"
	}
	return fmt.Sprintf("%v", t.Subscribers())
}

// MessageKind discriminates the variants of Message.
type MessageKind uint8

const (
	// MessageCreate carries Create.
	MessageCreate MessageKind = iota + 1
	// MessageOperation carries Op.
	MessageOperation
	// MessageChildren carries Parent and the Children attached to it since the last flush.
	MessageChildren
	// MessageDestroy carries the Destroyed ids batched since the last flush.
	MessageDestroy
)

func (k MessageKind) String() string {
	switch k {
	case MessageCreate:
		return "create"
	case MessageOperation:
		return "operation"
	case MessageChildren:
		return "children"
	case MessageDestroy:
		return "destroy"
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

// Creation announces a replica to subscribers.
type Creation struct {
	ID       ID
	ClassTag string
	Data     map[string]interface{}
	Tags     map[string]interface{}
	// Seq is the sequence number of the last operation folded into Data.
	Seq uint64
}

// Operation is one path-addressed mutation of a replica's data tree.
type Operation struct {
	ID ID
	// Seq increases by one per operation of the same replica, starting at 1.
	// Zero disables duplicate detection.
	Seq    uint64
	Code   OpCode
	Path   string
	Index  int
	Value  interface{}
	Values map[string]interface{}
}

// Message is the unit handed to a Transport. Only the fields of its Kind are set.
type Message struct {
	Kind      MessageKind
	Create    *Creation
	Op        *Operation
	Parent    ID
	Children  []ID
	Destroyed []ID
}

// CloneMessage deep-copies msg so the copy shares no containers with the original.
func CloneMessage(msg Message) Message {
	out := msg
	if msg.Create != nil {
		c := *msg.Create
		c.Data = cloneMap(msg.Create.Data)
		c.Tags = cloneMap(msg.Create.Tags)
		out.Create = &c
	}
	if msg.Op != nil {
		op := *msg.Op
		op.Value = cloneValue(msg.Op.Value)
		op.Values = cloneMap(msg.Op.Values)
		out.Op = &op
	}
	out.Children = append([]ID(nil), msg.Children...)
	out.Destroyed = append([]ID(nil), msg.Destroyed...)
	return out
}

func cloneValue(v interface{}) interface{} {
	switch c := v.(type) {
	case map[string]interface{}:
		return cloneMap(c)
	case []interface{}:
		out := make([]interface{}, len(c))
		for i := range c {
			out[i] = cloneValue(c[i])
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
