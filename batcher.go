package replica

// batcher coalesces lifecycle events between flushes: child attachments per
// parent (the children themselves wait in the parent's pending list) and
// destructions.
type batcher struct {
	parents []ID

	destroyed     []ID
	destroyTarget Target

	// destroyFor holds destructions visible to explicit subscribers only.
	destroyFor map[string][]ID
}

func (b *batcher) queueChildren(parent ID) {
	for _, id := range b.parents {
		if id == parent {
			return
		}
	}
	b.parents = append(b.parents, parent)
}

func (b *batcher) queueDestroy(id ID, to Target) {
	if to.IsEmpty() {
		return
	}
	b.destroyed = append(b.destroyed, id)
	b.destroyTarget = b.destroyTarget.union(to)
}

func (b *batcher) queueDestroyFor(id ID, subs []string) {
	if b.destroyFor == nil {
		b.destroyFor = map[string][]ID{}
	}
	for _, sub := range subs {
		b.destroyFor[sub] = append(b.destroyFor[sub], id)
	}
}

// takeParents returns and clears the parents with queued children.
func (b *batcher) takeParents() []ID {
	p := b.parents
	b.parents = nil
	return p
}

// takeDestroyed returns and clears the batched destructions.
func (b *batcher) takeDestroyed() ([]ID, Target) {
	ids, to := b.destroyed, b.destroyTarget
	b.destroyed, b.destroyTarget = nil, Target{}
	return ids, to
}

// takeDestroyFor returns and clears the targeted destructions.
func (b *batcher) takeDestroyFor() map[string][]ID {
	d := b.destroyFor
	b.destroyFor = nil
	return d
}
