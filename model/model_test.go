package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		m    Model
		want string
	}{
		{name: "Single", m: Hydrate("User", nil, map[string]any{"id": int64(1)}), want: "User:1"},
		{name: "StringKey", m: Hydrate("User", nil, map[string]any{"id": "1"}), want: "User:1"},
		{name: "Composite", m: Hydrate("OrderLine", []string{"order_id", "line"}, map[string]any{"order_id": 7, "line": 3}), want: "OrderLine:7:3"},
		{name: "Unsaved", m: NewEntity("User"), want: "User"},
		{name: "PartialComposite", m: Hydrate("OrderLine", []string{"order_id", "line"}, map[string]any{"order_id": 7}), want: "OrderLine:7:"},
		{name: "Bytes", m: Hydrate("Tag", []string{"slug"}, map[string]any{"slug": []byte("go")}), want: "Tag:go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Key(tt.m))
		})
	}

	t.Run("SameIdentity", func(t *testing.T) {
		t.Parallel()
		a := Hydrate("User", nil, map[string]any{"id": int64(5), "name": "a"})
		b := Hydrate("User", nil, map[string]any{"id": "5", "name": "b"})
		assert.Equal(t, Key(a), Key(b))
		assert.NotEqual(t, Key(a), Key(Hydrate("Post", nil, map[string]any{"id": 5})))
	})
}

func TestEntity(t *testing.T) {
	t.Parallel()

	t.Run("NewIsDirty", func(t *testing.T) {
		t.Parallel()
		e := NewEntity("User").Fill(map[string]any{"name": "foo", "email": "foo@example.com"})
		assert.False(t, e.Exists())
		assert.Equal(t, []string{"email", "name"}, e.DirtyColumns())
		assert.Equal(t, []string{"id"}, e.KeyNames())
	})

	t.Run("HydratedTracksChanges", func(t *testing.T) {
		t.Parallel()
		e := Hydrate("User", nil, map[string]any{"id": 1, "name": "foo", "tags": []string{"a"}})
		assert.True(t, e.Exists())
		assert.Empty(t, e.Dirty())

		e.Set("name", "foo")
		e.Set("tags", []string{"a"})
		assert.Empty(t, e.Dirty())

		e.Set("name", "bar")
		assert.Equal(t, map[string]any{"name": "bar"}, e.Dirty())

		e.SyncOriginal()
		assert.Empty(t, e.Dirty())
	})

	t.Run("Attributes", func(t *testing.T) {
		t.Parallel()
		e := Hydrate("User", nil, map[string]any{"id": 1})
		attrs := e.Attributes()
		attrs["id"] = 2
		assert.Equal(t, 1, e.Get("id"))

		v, ok := e.ResolveField("id")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		_, ok = e.ResolveField("missing")
		assert.False(t, ok)
		assert.Equal(t, "User:1", e.String())
	})

	t.Run("Relations", func(t *testing.T) {
		t.Parallel()
		e := NewEntity("Post")
		_, ok := e.Relation("author")
		assert.False(t, ok)
		author := Hydrate("User", nil, map[string]any{"id": 1})
		e.SetRelation("author", author)
		v, ok := e.Relation("author")
		require.True(t, ok)
		assert.Same(t, author, v)
		e.UnsetRelation("author")
		_, ok = e.Relation("author")
		assert.False(t, ok)
	})

	t.Run("MarkDeleted", func(t *testing.T) {
		t.Parallel()
		e := Hydrate("User", nil, map[string]any{"id": 1})
		e.MarkDeleted()
		assert.False(t, e.Exists())
	})
}

func TestKind(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{KindBelongsTo, KindHasOne, KindHasMany, KindMorphTo, KindMorphMany, KindBelongsToMany} {
		got, ok := ParseKind(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
	}
	_, ok := ParseKind("invalid")
	assert.False(t, ok)
	_, ok = ParseKind("hasManyThrough")
	assert.False(t, ok)

	assert.True(t, KindBelongsTo.ToOne())
	assert.True(t, KindMorphTo.OwnsForeignKey())
	assert.False(t, KindHasOne.OwnsForeignKey())
	assert.False(t, KindBelongsToMany.ToOne())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestOp(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "update", OpUpdate.String())
	assert.Equal(t, "delete", OpDelete.String())
	m := Mutation{Op: OpCreate, Model: NewEntity("User")}
	assert.Equal(t, "User", m.Type())
}
