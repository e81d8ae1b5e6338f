package replica

import "fmt"

// Kind discriminates the events a listener can subscribe to.
type Kind uint8

const (
	// KindChange fires when a value is set at a path.
	KindChange Kind = iota + 1
	// KindNewKey fires when a value is set at a previously absent path.
	KindNewKey
	// KindArrayInsert fires when a value is appended to a sequence.
	KindArrayInsert
	// KindArraySet fires when a sequence element is replaced.
	KindArraySet
	// KindArrayRemove fires when a sequence element is removed.
	KindArrayRemove
	// KindChildAdded fires when a child's attachment is flushed.
	KindChildAdded
	// KindRaw receives every event of a replica, before the kind-specific listeners.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindChange:
		return "Change"
	case KindNewKey:
		return "NewKey"
	case KindArrayInsert:
		return "ArrayInsert"
	case KindArraySet:
		return "ArraySet"
	case KindArrayRemove:
		return "ArrayRemove"
	case KindChildAdded:
		return "ChildAdded"
	case KindRaw:
		return "Raw"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// OpCode identifies a mutation carried on the wire.
type OpCode uint8

const (
	// OpSetValue sets one path.
	OpSetValue OpCode = iota + 1
	// OpSetValues merges a map of values under a path.
	OpSetValues
	// OpArrayInsert appends to the sequence at a path.
	OpArrayInsert
	// OpArraySet replaces a sequence element by 1-based index.
	OpArraySet
	// OpArrayRemove removes a sequence element by 1-based index.
	OpArrayRemove
)

func (c OpCode) String() string {
	switch c {
	case OpSetValue:
		return "SetValue"
	case OpSetValues:
		return "SetValues"
	case OpArrayInsert:
		return "ArrayInsert"
	case OpArraySet:
		return "ArraySet"
	case OpArrayRemove:
		return "ArrayRemove"
	}
	return fmt.Sprintf("OpCode(%d)", uint8(c))
}

// Event is what a listener observes. Args depend on Kind:
//
//	Change       newValue, oldValue
//	NewKey       value
//	ArrayInsert  newLength, value
//	ArraySet     index, value
//	ArrayRemove  index, removedValue
//	ChildAdded   *Replica
type Event struct {
	Kind Kind
	Path string
	Args []interface{}
}

// State is a replica's lifecycle stage.
type State uint8

const (
	StateCreated State = iota
	StateActive
	StatePendingDestruction
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StatePendingDestruction:
		return "pending-destruction"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Role is the part a Store plays in replication.
type Role uint8

const (
	// RoleAuthority owns the authoritative copies and emits operations.
	RoleAuthority Role = iota + 1
	// RoleReplica applies operations received from an authority.
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleReplica:
		return "replica"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}
