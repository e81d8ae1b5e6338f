package replica

import (
	"fmt"

	"go.uber.org/zap"
)

// Client is the non-authoritative role: it materializes the replicas an
// authority sends and applies their operations without re-emitting them.
type Client struct {
	store *Store
	// destroyed holds every id destroyed here; ids are never reused.
	destroyed map[ID]struct{}
}

// NewClient creates a client applying the messages received through t.
func NewClient(t Transport, cfg Config) *Client {
	cfg.validate()
	c := &Client{store: newStore(RoleReplica, cfg), destroyed: map[ID]struct{}{}}
	for _, kind := range []MessageKind{MessageCreate, MessageOperation, MessageChildren, MessageDestroy} {
		t.Handle(kind, func(from string, msg Message) {
			if err := c.Apply(msg); err != nil {
				c.store.logger.Warn("message rejected", zap.String("from", from), zap.Error(err))
			}
		})
	}
	return c
}

// Store returns the client's replicas.
func (c *Client) Store() *Store {
	return c.store
}

// Apply applies one message from the authority. References to unknown ids
// are logged and dropped, since they are expected when a destruction races
// in-flight operations; only malformed messages return an error.
func (c *Client) Apply(msg Message) error {
	switch msg.Kind {
	case MessageCreate:
		if msg.Create == nil {
			return fmt.Errorf("%s message without payload: %w", msg.Kind, ErrUnknownMessage)
		}
		c.create(msg.Create)
	case MessageOperation:
		if msg.Op == nil {
			return fmt.Errorf("%s message without payload: %w", msg.Kind, ErrUnknownMessage)
		}
		c.operate(msg.Op)
	case MessageChildren:
		c.adopt(msg.Parent, msg.Children)
	case MessageDestroy:
		for _, id := range msg.Destroyed {
			c.destroy(id)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Kind)
	}
	return nil
}

func (c *Client) create(cr *Creation) {
	if _, ok := c.store.Get(cr.ID); ok {
		return
	}
	if _, gone := c.destroyed[cr.ID]; gone {
		c.store.warn(nil, "Create", rootPath, fmt.Errorf("%w: %s", ErrDestroyed, cr.ID))
		return
	}
	r := newReplica(c.store, cr.ID, cr.ClassTag, cr.Data, cr.Tags, All())
	r.seq = cr.Seq
	id := r.id
	r.cleanup.add(func() { c.destroyed[id] = struct{}{} })
	c.store.add(r)
	r.state = StateActive
	c.store.announce(r)
}

func (c *Client) destroy(id ID) {
	if r, ok := c.store.Get(id); ok {
		r.destroy()
		return
	}
	if _, gone := c.destroyed[id]; gone {
		c.store.logger.Debug("duplicate destroy", zap.Stringer("replica", id))
		return
	}
	c.store.warn(nil, "Destroy", rootPath, fmt.Errorf("%w: %s", ErrUnknownObject, id))
}

func (c *Client) operate(op *Operation) {
	r, ok := c.store.Get(op.ID)
	if !ok {
		c.store.warn(nil, op.Code.String(), op.Path, fmt.Errorf("%w: %s", ErrUnknownObject, op.ID))
		return
	}
	if op.Seq != 0 {
		if op.Seq <= r.seq {
			c.store.logger.Debug("duplicate operation",
				zap.Stringer("replica", r.id), zap.Uint64("seq", op.Seq), zap.Uint64("applied", r.seq))
			return
		}
		r.seq = op.Seq
	}
	if r.apply(op) {
		c.store.metrics.applied(op.Code)
	}
}

func (c *Client) adopt(pid ID, children []ID) {
	p, ok := c.store.Get(pid)
	if !ok || p.state != StateActive {
		c.store.warn(nil, "ChildAdded", rootPath, fmt.Errorf("%w: parent %s", ErrUnknownObject, pid))
		return
	}
	for _, cid := range children {
		child, ok := c.store.Get(cid)
		if !ok {
			c.store.warn(p, "ChildAdded", rootPath, fmt.Errorf("%w: child %s", ErrUnknownObject, cid))
			continue
		}
		if child.parent == pid && p.hasChild(cid) {
			continue
		}
		child.link(p)
		p.attach(child)
	}
}
