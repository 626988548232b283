package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/internal/samplestore"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "mpovm")
}

func TestCatalog(t *testing.T) {
	t.Setenv("MPOVM_DATA_DIR", t.TempDir())
	out := execute(t, "catalog")
	for _, name := range []string{"pauli", "x", "y", "z"} {
		assert.Contains(t, out, name)
	}
}

func TestPMF(t *testing.T) {
	t.Setenv("MPOVM_DATA_DIR", t.TempDir())
	out := execute(t, "pmf", "--sites", "2", "--povm", "z", "--width", "2")

	var members []struct {
		Shape []int     `json:"shape"`
		PMF   []float64 `json:"pmf"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	require.Len(t, members, 1)
	assert.Equal(t, []int{2, 2}, members[0].Shape)
	sum := 0.0
	for _, p := range members[0].PMF {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-10)
}

func TestSampleStoreAndList(t *testing.T) {
	t.Setenv("MPOVM_DATA_DIR", t.TempDir())
	out := execute(t, "sample", "--sites", "3", "--povm", "pauli", "--width", "3",
		"--samples", "12", "--seed", "5", "--store")

	var stored struct {
		Run struct {
			ID      string `json:"id"`
			Samples int    `json:"samples"`
		} `json:"run"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	require.NotEmpty(t, stored.Run.ID)
	assert.Equal(t, 12, stored.Run.Samples)

	assert.Contains(t, execute(t, "runs", "list"), stored.Run.ID)

	shown := execute(t, "runs", "show", stored.Run.ID)
	var show struct {
		Payload struct {
			Dims   [][]int      `json:"dims"`
			Packed [][][]uint64 `json:"packed"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(shown), &show))
	assert.Equal(t, [][]int{{6, 6, 6}}, show.Payload.Dims)
	assert.Len(t, show.Payload.Packed[0], 12)
}

type stubArchive map[string][]byte

func (s stubArchive) Get(_ context.Context, id string) ([]byte, error) {
	blob, ok := s[id]
	if !ok {
		return nil, errors.New("no such object")
	}
	return blob, nil
}

func TestFetchRun(t *testing.T) {
	payload := &samplestore.Payload{Dims: [][]int{{2, 2}}, Packed: [][][]uint64{{{1}, {3}}}, Seed: 8}
	blob, err := payload.Encode()
	require.NoError(t, err)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	require.NoError(t, fetchRun(cmd, stubArchive{"r1": blob}, "r1"))

	var got struct {
		ID      string               `json:"id"`
		Payload *samplestore.Payload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, payload, got.Payload)

	assert.Error(t, fetchRun(cmd, stubArchive{}, "r2"))
}
