package features_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"milprep/internal/features"
)

func sequentialBag(rows, dim int, offset float32) features.Bag {
	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = offset + float32(i)
	}
	return features.Bag{Rows: rows, Dim: dim, Data: data}
}

func TestArchiveRoundTripSelectsTable(t *testing.T) {
	feats := sequentialBag(4, 3, 0)
	coords := sequentialBag(4, 2, 100)

	var buf bytes.Buffer
	require.NoError(t, features.WriteArchive(&buf, map[string]features.Bag{"feats": feats, "coords": coords}))

	got, err := features.ReadArchiveTable(bytes.NewReader(buf.Bytes()), "feats")
	require.NoError(t, err)
	require.Equal(t, feats, got)

	got, err = features.ReadArchiveTable(bytes.NewReader(buf.Bytes()), "coords")
	require.NoError(t, err)
	require.Equal(t, coords, got)

	_, err = features.ReadArchiveTable(bytes.NewReader(buf.Bytes()), "missing")
	require.ErrorIs(t, err, features.ErrTableNotFound)
}

func TestWriteArchiveRejectsInconsistentShape(t *testing.T) {
	var buf bytes.Buffer
	err := features.WriteArchive(&buf, map[string]features.Bag{"feats": {Rows: 2, Dim: 3, Data: make([]float32, 5)}})
	require.Error(t, err)
}

func TestFileStoreExists(t *testing.T) {
	dir := t.TempDir()
	store := features.FileStore{}

	valid := filepath.Join(dir, "valid.mpk")
	require.NoError(t, features.WriteFile(valid, features.DefaultDataset, sequentialBag(2, 2, 0)))
	require.True(t, store.Exists(features.Path(valid)))

	empty := filepath.Join(dir, "empty.mpk")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.False(t, store.Exists(features.Path(empty)))

	garbage := filepath.Join(dir, "garbage.mpk")
	require.NoError(t, os.WriteFile(garbage, []byte("not an archive at all"), 0o644))
	require.False(t, store.Exists(features.Path(garbage)))

	require.False(t, store.Exists(features.Path(filepath.Join(dir, "absent.mpk"))))
	require.False(t, store.Exists(features.Path(dir)))
}

func TestFileStoreReadWrapsFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slide.mpk")
	require.NoError(t, features.WriteFile(path, "other", sequentialBag(1, 2, 0)))

	_, err := features.FileStore{}.Read(context.Background(), features.Path(path))
	var readErr *features.StorageReadError
	require.ErrorAs(t, err, &readErr)
	require.Equal(t, features.Path(path), readErr.Path)
	require.ErrorIs(t, err, features.ErrTableNotFound)

	bag, err := features.FileStore{Dataset: "other"}.Read(context.Background(), features.Path(path))
	require.NoError(t, err)
	require.Equal(t, 1, bag.Rows)
}

func TestAssembleConcatenatesInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mpk")
	b := filepath.Join(dir, "b.mpk")
	require.NoError(t, features.WriteFile(a, features.DefaultDataset, sequentialBag(3, 2, 0)))
	require.NoError(t, features.WriteFile(b, features.DefaultDataset, sequentialBag(2, 2, 50)))

	forward, err := features.Assemble(context.Background(), features.FileStore{}, []features.Path{features.Path(a), features.Path(b)})
	require.NoError(t, err)
	reverse, err := features.Assemble(context.Background(), features.FileStore{}, []features.Path{features.Path(b), features.Path(a)})
	require.NoError(t, err)

	require.Equal(t, 5, forward.Rows)
	require.Equal(t, 2, forward.Dim)
	require.Equal(t, forward, reverse)
	require.Equal(t, []float32{0, 1}, forward.Row(0))
	require.Equal(t, []float32{50, 51}, forward.Row(3))
}

func TestAssembleRejectsWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mpk")
	b := filepath.Join(dir, "b.mpk")
	require.NoError(t, features.WriteFile(a, features.DefaultDataset, sequentialBag(1, 2, 0)))
	require.NoError(t, features.WriteFile(b, features.DefaultDataset, sequentialBag(1, 3, 0)))

	_, err := features.Assemble(context.Background(), features.FileStore{}, []features.Path{features.Path(a), features.Path(b)})
	require.ErrorIs(t, err, features.ErrWidthMismatch)
	var readErr *features.StorageReadError
	require.ErrorAs(t, err, &readErr)
	require.Equal(t, features.Path(b), readErr.Path)
}

func TestAssembleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := features.Assemble(ctx, features.FileStore{}, []features.Path{"x.mpk"})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestToFixedSizePadsShortBags(t *testing.T) {
	bag := sequentialBag(3, 2, 1)
	rng := rand.New(rand.NewPCG(1, 2))

	out, count := features.ToFixedSize(bag, 5, rng)
	require.Equal(t, 3, count)
	require.Equal(t, 5, out.Rows)
	require.Len(t, out.Data, 10)

	var firsts []float32
	for i := 0; i < 3; i++ {
		firsts = append(firsts, out.Row(i)[0])
	}
	slices.Sort(firsts)
	require.Equal(t, []float32{1, 3, 5}, firsts)
	require.Equal(t, []float32{0, 0, 0, 0}, out.Data[6:])
}

func TestToFixedSizeSubsamplesWithoutReplacement(t *testing.T) {
	bag := sequentialBag(10, 1, 0)
	rng := rand.New(rand.NewPCG(7, 7))

	out, count := features.ToFixedSize(bag, 4, rng)
	require.Equal(t, 4, count)
	seen := map[float32]bool{}
	for _, v := range out.Data {
		require.False(t, seen[v], "instance %v drawn twice", v)
		seen[v] = true
	}
}

func TestToFixedSizeIsDeterministicForSeed(t *testing.T) {
	bag := sequentialBag(20, 2, 0)
	a, _ := features.ToFixedSize(bag, 6, rand.New(rand.NewPCG(3, 9)))
	b, _ := features.ToFixedSize(bag, 6, rand.New(rand.NewPCG(3, 9)))
	require.Equal(t, a, b)
}

func TestToFixedSizeEmptyBag(t *testing.T) {
	out, count := features.ToFixedSize(features.Bag{Dim: 4}, 3, rand.New(rand.NewPCG(0, 0)))
	require.Zero(t, count)
	require.Equal(t, make([]float32, 12), out.Data)
}
