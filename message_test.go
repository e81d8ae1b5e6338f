package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget(t *testing.T) {
	t.Parallel()
	var zero Target
	assert.True(t, zero.IsZero())
	assert.True(t, zero.IsEmpty())
	assert.False(t, Only().IsZero())
	assert.True(t, Only().IsEmpty())

	all := All()
	assert.True(t, all.Includes("anyone"))
	assert.Nil(t, all.Subscribers())
	assert.Equal(t, "all", all.String())

	ab := Only("b", "a")
	assert.True(t, ab.Includes("a"))
	assert.False(t, ab.Includes("c"))
	assert.Equal(t, []string{"a", "b"}, ab.Subscribers())
	assert.Equal(t, "[a b]", ab.String())
	assert.Equal(t, []string{"b"}, ab.without(map[string]struct{}{"a": {}}).Subscribers())
	assert.True(t, all.without(map[string]struct{}{"a": {}}).IsAll())
	assert.True(t, ab.union(all).IsAll())
	assert.Equal(t, []string{"a", "b"}, zero.union(ab).Subscribers())
}

func TestID(t *testing.T) {
	t.Parallel()
	a, b := newID(), newID()
	assert.Equal(t, -1, a.Compare(b))
	assert.False(t, a.IsZero())
	assert.True(t, NoID.IsZero())

	parsed, err := ParseID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
	_, err = ParseID("not-an-id")
	assert.Error(t, err)

	ids := []ID{b, a}
	sortIDs(ids)
	assert.Equal(t, []ID{a, b}, ids)
}

func TestCloneMessage(t *testing.T) {
	t.Parallel()
	data := map[string]interface{}{"l": []interface{}{map[string]interface{}{"x": 1}}}
	msg := Message{Kind: MessageCreate, Create: &Creation{ID: newID(), Data: data}}
	c := CloneMessage(msg)
	data["l"].([]interface{})[0].(map[string]interface{})["x"] = 2
	v, _ := GetValue(c.Create.Data, "l.1.x")
	assert.Equal(t, 1, v)

	op := &Operation{Value: []interface{}{1}, Values: map[string]interface{}{"a": 1}}
	c = CloneMessage(Message{Kind: MessageOperation, Op: op})
	op.Value.([]interface{})[0] = 2
	op.Values["a"] = 2
	assert.Equal(t, []interface{}{1}, c.Op.Value)
	assert.Equal(t, map[string]interface{}{"a": 1}, c.Op.Values)
}

func TestStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Change", KindChange.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.Equal(t, "SetValues", OpSetValues.String())
	assert.Equal(t, "pending-destruction", StatePendingDestruction.String())
	assert.Equal(t, "authority", RoleAuthority.String())
	assert.Equal(t, "children", MessageChildren.String())
}
