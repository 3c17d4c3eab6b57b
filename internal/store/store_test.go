package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWriteReadReference(t *testing.T) {
	s := New(t.TempDir())

	_, ok := s.ReadReference("foo/bar")
	assert.False(t, ok)

	require.NoError(t, s.WriteReference("foo/bar", []byte("png-bytes")))
	data, ok := s.ReadReference("foo/bar")
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestStoreWriteReferenceClearsStaleOutput(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.WriteCurrent("id1", []byte("current")))
	require.NoError(t, s.WriteDifference("id1", []byte("diff")))
	assert.True(t, s.HasDifference("id1"))

	require.NoError(t, s.WriteReference("id1", []byte("ref")))

	_, hasCurrent := s.ReadCurrent("id1")
	assert.False(t, hasCurrent)
	assert.False(t, s.HasDifference("id1"))
}

func TestStoreCleanOutput(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteCurrent("id1", []byte("current")))
	require.NoError(t, s.WriteDifference("id1", []byte("diff")))

	s.CleanOutput("id1")

	_, hasCurrent := s.ReadCurrent("id1")
	assert.False(t, hasCurrent)
	assert.False(t, s.HasDifference("id1"))
}

func TestStoreClearOutputDirsWipesEverything(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteCurrent("a/b", []byte("1")))
	require.NoError(t, s.WriteCurrent("c/d", []byte("2")))

	s.ClearOutputDirs()

	assert.Empty(t, s.ListCurrentIDs())
}

func TestStoreCleanOutputFilesOnlyTouchesGivenIDs(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteCurrent("keep", []byte("1")))
	require.NoError(t, s.WriteCurrent("drop", []byte("2")))

	s.CleanOutputFiles([]string{"drop"})

	_, hasKeep := s.ReadCurrent("keep")
	_, hasDrop := s.ReadCurrent("drop")
	assert.True(t, hasKeep)
	assert.False(t, hasDrop)
}

func TestStoreListReferenceIDsSorted(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteReference("zebra/one", []byte("1")))
	require.NoError(t, s.WriteReference("alpha/two", []byte("2")))

	ids := s.ListReferenceIDs()
	assert.Equal(t, []string{"alpha/two", "zebra/one"}, ids)
}

func TestStoreRemoveReferencePrunesEmptyDirs(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteReference("a/b/c", []byte("1")))

	s.RemoveReference("a/b/c")

	_, ok := s.ReadReference("a/b/c")
	assert.False(t, ok)
	assert.Empty(t, s.ListReferenceIDs())
}

func TestStoreRemoveReferenceKeepsSiblingDirs(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteReference("a/b/c", []byte("1")))
	require.NoError(t, s.WriteReference("a/b/d", []byte("2")))

	s.RemoveReference("a/b/c")

	ids := s.ListReferenceIDs()
	assert.Equal(t, []string{"a/b/d"}, ids)
}
