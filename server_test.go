package replica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// session is an authority and its clients joined by a Loopback.
type session struct {
	hub     *Loopback
	server  *Server
	clients map[string]*Client
}

func newSession(subs ...string) *session {
	hub := NewLoopback()
	s := &session{
		hub:     hub,
		server:  NewServer(hub.Server(), DefaultConfig()),
		clients: map[string]*Client{},
	}
	for _, sub := range subs {
		s.join(sub)
	}
	return s
}

func (s *session) join(sub string) *Client {
	c := NewClient(s.hub.Connect(sub), DefaultConfig())
	s.clients[sub] = c
	s.server.AddSubscriber(sub)
	return c
}

func (s *session) flush() {
	s.server.Flush()
	s.hub.Pump()
}

func (s *session) copyOf(sub string, r *Replica) (*Replica, bool) {
	return s.clients[sub].Store().Get(r.ID())
}

func TestFlushWithoutChangesSendsNothing(t *testing.T) {
	t.Parallel()
	s, rec := newRecordingServer()
	newPlayer(s)
	rec.reset()
	s.Flush()
	s.Flush()
	assert.Empty(t, rec.sent)
}

func TestDestructionsAreBatched(t *testing.T) {
	t.Parallel()
	s, rec := newRecordingServer()
	var ids []ID
	for i := 0; i < 5; i++ {
		r := newPlayer(s)
		ids = append(ids, r.ID())
		r.Destroy()
	}
	rec.reset()
	s.Flush()
	require.Len(t, rec.sent, 1)
	assert.Equal(t, MessageDestroy, rec.sent[0].msg.Kind)
	assert.Equal(t, ids, rec.sent[0].msg.Destroyed)
	assert.True(t, rec.sent[0].to.IsAll())

	rec.reset()
	s.Flush()
	assert.Empty(t, rec.sent)
}

func TestDestroyBatchUnionsTargets(t *testing.T) {
	t.Parallel()
	s, rec := newRecordingServer()
	a := s.MustCreate(Params{ClassTag: "x", Target: Only("a")})
	b := s.MustCreate(Params{ClassTag: "x", Target: Only("b", "c")})
	a.Destroy()
	b.Destroy()
	rec.reset()
	s.Flush()
	require.Len(t, rec.sent, 1)
	assert.Equal(t, []string{"a", "b", "c"}, rec.sent[0].to.Subscribers())
}

func TestClientMirrorsAuthority(t *testing.T) {
	t.Parallel()
	s := newSession("alice", "bob")
	r := newPlayer(s.server)
	s.hub.Pump()

	c, ok := s.copyOf("alice", r)
	require.True(t, ok)
	assert.False(t, c.IsAuthoritative())
	assert.Equal(t, "player", c.ClassTag())

	var changes [][]interface{}
	c.OnChange("hp", func(n, o interface{}) { changes = append(changes, []interface{}{n, o}) })
	var inserted []interface{}
	c.OnArrayInsert("items", func(n int, v interface{}) { inserted = append(inserted, n, v) })

	r.SetValue("hp", 80)
	r.ArrayInsert("items", "sword")
	r.ArrayInsert("items", "shield")
	r.ArraySet("items", 2, "buckler")
	r.ArrayRemove("items", 1)
	r.SetValues("", map[string]interface{}{"xp": 5})
	s.hub.Pump()

	assert.Equal(t, [][]interface{}{{80, 100}}, changes)
	assert.Equal(t, []interface{}{1, "sword", 2, "shield"}, inserted)
	for sub := range s.clients {
		c, _ := s.copyOf(sub, r)
		assert.Equal(t, r.Snapshot(), c.Snapshot(), sub)
		want, err := r.Digest()
		require.NoError(t, err)
		got, err := c.Digest()
		require.NoError(t, err)
		assert.Equal(t, want, got, sub)
	}

	r.Destroy()
	s.hub.Pump()
	_, ok = s.copyOf("alice", r)
	assert.True(t, ok, "destruction reaches clients at the next flush")
	s.flush()
	_, ok = s.copyOf("alice", r)
	assert.False(t, ok)
	assert.Equal(t, 0, s.clients["alice"].store.listeners.count(r.ID()))
}

func TestClientIsReadOnly(t *testing.T) {
	t.Parallel()
	s := newSession("alice")
	r := newPlayer(s.server)
	other := newPlayer(s.server)
	s.hub.Pump()
	c, _ := s.copyOf("alice", r)
	co, _ := s.copyOf("alice", other)

	c.SetValue("hp", 1)
	assert.Equal(t, 0, c.ArrayInsert("items", "x"))
	v, _ := c.Get("hp")
	assert.Equal(t, 100, v)
	assert.ErrorIs(t, c.SetParent(co), ErrReadOnly)
	assert.Equal(t, 0, s.hub.Pending())

	c.DestroyFor("alice")
	assert.Equal(t, StateActive, c.State())
}

func TestClientChildren(t *testing.T) {
	t.Parallel()
	s := newSession("alice")
	parent := newPlayer(s.server)
	child := newPlayer(s.server)
	s.hub.Pump()
	cp, _ := s.copyOf("alice", parent)
	var added []ID
	cp.OnChildAdded(func(c *Replica) { added = append(added, c.ID()) })

	require.NoError(t, child.SetParent(parent))
	s.hub.Pump()
	assert.Empty(t, added)
	s.flush()
	assert.Equal(t, []ID{child.ID()}, added)

	cc, _ := s.copyOf("alice", child)
	p, ok := cc.Parent()
	require.True(t, ok)
	assert.Equal(t, cp, p)

	// duplicate delivery doesn't attach twice
	require.NoError(t, s.clients["alice"].Apply(Message{Kind: MessageChildren, Parent: parent.ID(), Children: []ID{child.ID()}}))
	assert.Len(t, added, 1)

	parent.Destroy()
	s.flush()
	assert.Equal(t, 0, s.clients["alice"].Store().Len())
}

func TestLateJoinerIsSynced(t *testing.T) {
	t.Parallel()
	s := newSession()
	parent := newPlayer(s.server)
	child := newPlayer(s.server)
	hidden := s.server.MustCreate(Params{ClassTag: "secret", Target: Only("bob")})
	require.NoError(t, child.SetParent(parent))
	parent.SetValue("hp", 40)
	s.flush()

	var created []*Replica
	hub := s.hub.Connect("carol")
	client := NewClient(hub, DefaultConfig())
	client.Store().OnCreated("player", func(r *Replica) { created = append(created, r) })
	s.server.AddSubscriber("carol")
	s.clients["carol"] = client
	s.hub.Pump()

	require.Len(t, created, 2)
	assert.Equal(t, parent.ID(), created[0].ID())
	assert.Equal(t, child.ID(), created[1].ID())
	cp, _ := s.copyOf("carol", parent)
	hp, _ := cp.Get("hp")
	assert.Equal(t, 40, hp)
	assert.Len(t, cp.Children(), 1)
	_, ok := s.copyOf("carol", hidden)
	assert.False(t, ok)
	assert.Equal(t, []string{"carol"}, s.server.Subscribers())

	parent.SetValue("hp", 30)
	s.hub.Pump()
	hp, _ = cp.Get("hp")
	assert.Equal(t, 30, hp)

	s.server.RemoveSubscriber("carol")
	assert.Empty(t, s.server.Subscribers())
}

func TestDuplicateOperationsAreIgnored(t *testing.T) {
	t.Parallel()
	s, rec := newRecordingServer()
	r := newPlayer(s)
	r.ArrayInsert("items", "sword")
	r.SetValue("hp", 50)

	client := NewClient(&recorder{}, DefaultConfig())
	inserts := 0
	for pass := 0; pass < 2; pass++ {
		for _, m := range rec.sent {
			require.NoError(t, client.Apply(CloneMessage(m.msg)))
		}
		if pass == 0 {
			c, ok := client.Store().Get(r.ID())
			require.True(t, ok)
			c.OnArrayInsert("items", func(int, interface{}) { inserts++ })
		}
	}
	c, _ := client.Store().Get(r.ID())
	assert.Equal(t, r.Snapshot(), c.Snapshot())
	assert.Equal(t, 0, inserts)
}

func TestDestroyFor(t *testing.T) {
	t.Parallel()
	s := newSession("a", "b", "c")
	r := s.server.MustCreate(Params{ClassTag: "x", Target: Only("a", "b")})
	s.hub.Pump()
	_, ok := s.copyOf("c", r)
	require.False(t, ok)

	r.DestroyFor("a", "c")
	r.DestroyFor("a")
	assert.Equal(t, StateActive, r.State())
	s.flush()
	_, ok = s.copyOf("a", r)
	assert.False(t, ok)
	cb, ok := s.copyOf("b", r)
	require.True(t, ok)

	r.SetValue("v", 1)
	s.hub.Pump()
	v, _ := cb.Get("v")
	assert.Equal(t, 1, v)
	assert.False(t, r.visibleTo("a"))

	r.DestroyFor("b")
	assert.Equal(t, StateDestroyed, r.State())
	s.flush()
	_, ok = s.copyOf("b", r)
	assert.False(t, ok)
}

func TestDestroyForHidesDescendants(t *testing.T) {
	t.Parallel()
	s := newSession("a", "b")
	parent := s.server.MustCreate(Params{ClassTag: "room", Target: Only("a", "b")})
	open := s.server.MustCreate(Params{ClassTag: "item", Target: All()})
	listed := s.server.MustCreate(Params{ClassTag: "item", Target: Only("a", "b")})
	require.NoError(t, open.SetParent(parent))
	require.NoError(t, listed.SetParent(parent))
	s.flush()
	late := s.server.MustCreate(Params{ClassTag: "item", Target: All()})
	require.NoError(t, late.SetParent(parent))
	s.hub.Pump()
	require.Equal(t, 4, s.clients["a"].Store().Len())

	parent.DestroyFor("a")
	s.flush()
	assert.Equal(t, 0, s.clients["a"].Store().Len())
	assert.Equal(t, 4, s.clients["b"].Store().Len())
	for _, r := range []*Replica{parent, open, listed, late} {
		assert.False(t, r.visibleTo("a"), r.String())
		assert.True(t, r.visibleTo("b"), r.String())
		assert.Equal(t, StateActive, r.State(), r.String())
	}

	open.SetValue("v", 1)
	s.hub.Pump()
	cb, _ := s.copyOf("b", open)
	v, _ := cb.Get("v")
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, s.clients["a"].Store().Len())

	// a child attached afterwards inherits the parent's hidden subscribers
	extra := s.server.MustCreate(Params{ClassTag: "item", Target: Only("a")})
	require.NoError(t, extra.SetParent(parent))
	assert.Equal(t, StateDestroyed, extra.State())
	s.flush()
	assert.Equal(t, 0, s.clients["a"].Store().Len())

	s.join("a")
	s.hub.Pump()
	assert.Equal(t, 0, s.clients["a"].Store().Len())

	parent.DestroyFor("b")
	assert.Equal(t, StateDestroyed, parent.State())
	assert.Equal(t, StateDestroyed, open.State())
	s.flush()
	assert.Equal(t, 0, s.clients["b"].Store().Len())
}

func TestDestroyForAllTarget(t *testing.T) {
	t.Parallel()
	s, _ := newRecordingServer()
	r := newPlayer(s)
	r.DestroyFor("a")
	assert.Equal(t, StateDestroyed, r.State())
}

func TestCreateAfterDestroyIsIgnored(t *testing.T) {
	t.Parallel()
	s, rec := newRecordingServer()
	r := newPlayer(s)
	r.Destroy()
	s.Flush()
	require.Equal(t, []MessageKind{MessageCreate, MessageDestroy}, rec.kinds())

	core, logs := observer.New(zap.WarnLevel)
	cfg := DefaultConfig()
	cfg.Logger = zap.New(core)
	client := NewClient(&recorder{}, cfg)
	create, destroy := rec.sent[0].msg, rec.sent[1].msg
	for _, m := range []Message{create, destroy, create, destroy} {
		require.NoError(t, client.Apply(CloneMessage(m)))
	}
	assert.Equal(t, 0, client.Store().Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("op", "Create")).Len())
	assert.Equal(t, 0, logs.FilterField(zap.String("op", "Destroy")).Len())

	require.NoError(t, client.Apply(Message{Kind: MessageDestroy, Destroyed: []ID{newID()}}))
	assert.Equal(t, 1, logs.FilterField(zap.String("op", "Destroy")).Len())
}

func TestOnCreated(t *testing.T) {
	t.Parallel()
	s, _ := newRecordingServer()
	first := newPlayer(s)
	s.MustCreate(Params{ClassTag: "monster", Target: All()})
	var seen []*Replica
	sub := s.Store().OnCreated("player", func(r *Replica) { seen = append(seen, r) })
	require.Equal(t, []*Replica{first}, seen)

	second := newPlayer(s)
	assert.Equal(t, []*Replica{first, second}, seen)
	sub.Unsubscribe()
	newPlayer(s)
	assert.Len(t, seen, 2)
	assert.Len(t, s.Store().Replicas(), 4)
	assert.Equal(t, RoleAuthority, s.Store().Role())
}

func TestApplyRejectsMalformed(t *testing.T) {
	t.Parallel()
	c := NewClient(&recorder{}, DefaultConfig())
	assert.ErrorIs(t, c.Apply(Message{Kind: MessageCreate}), ErrUnknownMessage)
	assert.ErrorIs(t, c.Apply(Message{Kind: MessageOperation}), ErrUnknownMessage)
	assert.ErrorIs(t, c.Apply(Message{Kind: 99}), ErrUnknownMessage)

	// references to unknown ids are expected and dropped
	assert.NoError(t, c.Apply(Message{Kind: MessageOperation, Op: &Operation{ID: newID(), Seq: 1, Code: OpSetValue, Path: "x"}}))
	assert.NoError(t, c.Apply(Message{Kind: MessageChildren, Parent: newID(), Children: []ID{newID()}}))
	assert.NoError(t, c.Apply(Message{Kind: MessageDestroy, Destroyed: []ID{newID()}}))
	assert.Equal(t, RoleReplica, c.Store().Role())
}

func TestSendFailureIsLogged(t *testing.T) {
	t.Parallel()
	rec := &recorder{err: errors.New("boom")}
	s := NewServer(rec, DefaultConfig())
	r := newPlayer(s)
	r.SetValue("hp", 1)
	v, _ := r.Get("hp")
	assert.Equal(t, 1, v)
	assert.Len(t, rec.sent, 2)
}

func TestLoopbackDisconnect(t *testing.T) {
	t.Parallel()
	hub := NewLoopback()
	end := hub.Connect("a")
	assert.Same(t, end, hub.Connect("a"))
	require.NoError(t, hub.Server().Send(All(), Message{Kind: MessageDestroy}))
	require.NoError(t, end.Send(All(), Message{Kind: MessageDestroy}))
	assert.Equal(t, 2, hub.Pending())

	hub.Disconnect("a")
	assert.Equal(t, 1, hub.Pending())
	assert.Error(t, end.Send(All(), Message{Kind: MessageDestroy}))
	assert.Equal(t, 1, hub.Pump())
}
