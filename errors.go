package replica

import "errors"

var (
	// ErrMissingClassTag is returned when a replica is created without a class tag.
	ErrMissingClassTag = errors.New("replica: missing class tag")

	// ErrMissingTarget is returned when a replica is created without a replication target.
	ErrMissingTarget = errors.New("replica: missing replication target")

	// ErrDestroyed is returned when an operation addresses a replica that is no longer active.
	ErrDestroyed = errors.New("replica: object is destroyed")

	// ErrCycle is returned when a parent would become a descendant of its own child.
	ErrCycle = errors.New("replica: parent is a descendant of the child")

	// ErrReadOnly is returned when a mutation is attempted on a non-authoritative replica.
	ErrReadOnly = errors.New("replica: object is not authoritative")

	// ErrUnknownObject is returned when a message or operation references an id that isn't registered.
	ErrUnknownObject = errors.New("replica: unknown object id")

	// ErrPathNotFound is returned when an intermediate container along a path is absent.
	ErrPathNotFound = errors.New("replica: path not found")

	// ErrNotSequence is returned when a sequence operation's path doesn't name a sequence.
	ErrNotSequence = errors.New("replica: path does not name a sequence")

	// ErrNotMap is returned when SetValues' path doesn't name a map.
	ErrNotMap = errors.New("replica: path does not name a map")

	// ErrInvalidIndex is returned when a sequence index has no existing value.
	ErrInvalidIndex = errors.New("replica: invalid sequence index")

	// ErrUnknownMessage is returned for message kinds or operation codes this package doesn't know.
	ErrUnknownMessage = errors.New("replica: unknown message kind")
)
