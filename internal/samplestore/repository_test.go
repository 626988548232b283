package samplestore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/mpmeasure/internal/testing"
)

func newTestRepo(t *testing.T) *Repository {
	return NewRepository(testingpkg.NewMemoryDB(t), zerolog.New(nil).Level(zerolog.Disabled))
}

func testPayload() *Payload {
	return &Payload{
		Dims:   [][]int{{2, 2}, {6, 6, 6}},
		Packed: [][][]uint64{{{0}, {3}, {2}}, {{215}, {7}}},
		Seed:   42,
	}
}

func TestPayload_EncodeDecode(t *testing.T) {
	p := testPayload()
	blob, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePayload(blob)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodePayload([]byte{0xc1})
	assert.Error(t, err)
}

func TestRepository_SaveGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, Run{POVM: "pauli", StateMode: "mps", Method: "cond", Members: 2, Samples: 3}, testPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	run, payload, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, run.ID)
	assert.Equal(t, "pauli", run.POVM)
	assert.Equal(t, "cond", run.Method)
	assert.Equal(t, 2, run.Members)
	assert.Equal(t, 3, run.Samples)
	assert.False(t, run.Archived)
	assert.True(t, saved.CreatedAt.Equal(run.CreatedAt))
	assert.Equal(t, testPayload(), payload)

	_, _, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListAndRetention(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{72 * time.Hour, time.Hour, 24 * time.Hour} {
		_, err := repo.Save(ctx, Run{
			ID:        []string{"old", "new", "mid"}[i],
			CreatedAt: now.Add(-age),
			POVM:      "x",
			StateMode: "mpdo",
			Method:    "direct",
			Members:   1,
			Samples:   10,
		}, testPayload())
		require.NoError(t, err)
	}

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)

	runs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	n, err := repo.DeleteOlderThan(ctx, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err = repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRepository_MarkArchived(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, Run{POVM: "z", StateMode: "mps", Method: "direct", Members: 1, Samples: 1}, testPayload())
	require.NoError(t, err)

	require.NoError(t, repo.MarkArchived(ctx, saved.ID))
	run, _, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, run.Archived)

	assert.ErrorIs(t, repo.MarkArchived(ctx, "missing"), ErrNotFound)
}
