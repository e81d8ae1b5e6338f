package replica

// Handler receives a message from the peer identified by from.
type Handler func(from string, msg Message)

// Transport moves messages between an authority and its subscribers. It must
// preserve the order of messages about the same replica and deliver each to
// each current subscriber at least once. Send must not retain msg after it
// returns: implementations encode or copy it.
type Transport interface {
	// Send delivers msg to the subscribers of to. A client-side transport
	// sends to its authority and ignores to.
	Send(to Target, msg Message) error
	// Handle registers the handler for received messages of the given kind.
	Handle(kind MessageKind, h Handler)
}
