/*
Package replica keeps remote copies of server-owned data trees consistent
with the authoritative copy, using a small vocabulary of path-addressed
mutations, and lets any party observe changes scoped to any sub-path.

Model

A Replica holds a tree of maps (map[string]interface{}) and sequences
([]interface{}) addressed by dotted paths such as "inventory.3.name";
sequence positions are 1-based. Replicas have a class tag, immutable tags,
a replication Target (All, or Only some subscribers) and at most one
parent, whose destruction cascades to its children.

Roles

A Server owns the authoritative copies. Its mutations (SetValue, SetValues,
ArrayInsert, ArraySet, ArrayRemove) change the tree and hand the Operation
to a Transport before firing local listeners. A Client applies the operations it
receives from the Transport to its own Store and fires its own listeners,
but never re-emits them. Each operation carries a per-replica sequence
number, so duplicated deliveries are inert.

Creation is sent immediately. Child attachments and destructions are
batched and sent by Flush, which Server.Start runs on a Scheduler at
Config.FlushPeriod (4 times per second by default), so a burst of spawns or
despawns costs one message.

Listeners

	hp := r.OnChange("stats.hp", func(newValue, oldValue interface{}) { ... })
	defer hp.Unsubscribe()

OnRaw listeners see every event of a replica before the kind-specific ones.
Store.OnCreated replays the existing replicas of a class before returning,
then reports new ones.

Concurrency

A Store and its replicas belong to one goroutine. Hosts post transport
callbacks and scheduler ticks to a Loop along with their own work. Listener
callbacks may mutate replicas and manage subscriptions.

Inert operations

An operation on a missing container, an out-of-range index or an unknown id
has no effect and is logged through Config.Logger.
*/
package replica
