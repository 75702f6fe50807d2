package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilberkman/linkscout/internal/core/models"
)

func strp(s string) *string { return &s }

func node(id, parent string, status models.Status, children ...string) models.Node {
	n := models.Node{ID: id, Title: "Title " + id, Status: status, Children: children}
	if parent != "" {
		n.ParentID = strp(parent)
	}
	return n
}

func TestReplaceIsFullReplacement(t *testing.T) {
	s := New()

	s.Replace(models.NewSnapshot(
		node("a", "", models.StatusSearching, "b"),
		node("b", "a", models.StatusSearching),
	))
	require.Equal(t, 2, s.Len())

	s.Replace(models.NewSnapshot(
		node("b", "", models.StatusCompleted, "c"),
		node("c", "b", models.StatusCompleted),
	))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok, "node from the previous snapshot must not survive")

	b, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.True(t, b.IsRoot())
}

func TestReplaceDoesNotAliasSnapshot(t *testing.T) {
	s := New()
	snap := models.NewSnapshot(node("a", "", models.StatusSearching, "b"))
	s.Replace(snap)

	n := snap.Nodes["a"]
	n.Children[0] = "mutated"

	got, _ := s.Get("a")
	assert.Equal(t, []string{"b"}, got.Children)
}

func TestFindRoot(t *testing.T) {
	t.Run("single root", func(t *testing.T) {
		s := New()
		s.Replace(models.NewSnapshot(
			node("c1", "r", models.StatusCompleted),
			node("r", "", models.StatusSearching, "c1"),
		))
		root, ok := s.FindRoot()
		require.True(t, ok)
		assert.Equal(t, "r", root.ID)
	})

	t.Run("no root", func(t *testing.T) {
		s := New()
		s.Replace(models.NewSnapshot(node("c1", "r", models.StatusCompleted)))
		_, ok := s.FindRoot()
		assert.False(t, ok)
	})

	t.Run("empty store", func(t *testing.T) {
		_, ok := New().FindRoot()
		assert.False(t, ok)
	})

	t.Run("several roots picks first in order", func(t *testing.T) {
		s := New()
		s.Replace(models.NewSnapshot(
			node("x", "missing", models.StatusCompleted),
			node("second", "", models.StatusCompleted),
			node("third", "", models.StatusCompleted),
		))
		for i := 0; i < 20; i++ {
			root, ok := s.FindRoot()
			require.True(t, ok)
			assert.Equal(t, "second", root.ID)
		}
		assert.Len(t, s.Roots(), 2)
	})
}

func TestIsComplete(t *testing.T) {
	s := New()
	assert.False(t, s.IsComplete(), "empty store is not complete")

	s.Replace(models.NewSnapshot(
		node("r", "", models.StatusSearching, "a"),
		node("a", "r", models.StatusCompleted),
	))
	assert.False(t, s.IsComplete())

	s.Replace(models.NewSnapshot(
		node("r", "", models.StatusCompleted, "a", "b"),
		node("a", "r", models.StatusPending),
		node("b", "r", models.StatusError),
	))
	assert.False(t, s.IsComplete())

	s.Replace(models.NewSnapshot(
		node("r", "", models.StatusCompleted, "a", "b", "c"),
		node("a", "r", models.StatusRateLimited),
		node("b", "r", models.StatusError),
		node("c", "r", models.StatusCompleted),
	))
	assert.True(t, s.IsComplete())

	s.Replace(models.NewSnapshot(node("r", "", models.Status("mystery"))))
	assert.False(t, s.IsComplete(), "unknown status is not terminal")

	s.Clear()
	assert.False(t, s.IsComplete())
}

func TestResolveChildrenSkipsMissing(t *testing.T) {
	s := New()
	s.Replace(models.NewSnapshot(
		node("A", "", models.StatusSearching, "B", "X", "C"),
		node("C", "A", models.StatusCompleted),
		node("B", "A", models.StatusCompleted),
	))

	a, _ := s.Get("A")
	children := s.ResolveChildren(a)
	require.Len(t, children, 2)
	assert.Equal(t, "B", children[0].ID)
	assert.Equal(t, "C", children[1].ID)

	leaf, _ := s.Get("B")
	assert.Empty(t, s.ResolveChildren(leaf))
}

func TestNodesAndCounts(t *testing.T) {
	s := New()
	s.Replace(models.NewSnapshot(
		node("r", "", models.StatusCompleted, "a", "b"),
		node("a", "r", models.StatusError),
		node("b", "r", models.StatusCompleted),
	))

	var ids []string
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"r", "a", "b"}, ids)

	c := s.Counts()
	assert.Equal(t, 2, c[models.StatusCompleted])
	assert.Equal(t, 1, c[models.StatusError])
	assert.Equal(t, 3, c.Total())
}
