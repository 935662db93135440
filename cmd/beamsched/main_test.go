package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestSolve(t *testing.T) {
	out, _, err := execute(t, "solve", "-f", "testdata/six.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "reward: 54\n")
	assert.Contains(t, out, "activated: B C\n")
}

func TestSolveOverridesJSON(t *testing.T) {
	out, _, err := execute(t, "solve", "-f", "testdata/six.yaml", "--agents", "2", "--ceiling", "3", "--json")
	require.NoError(t, err)
	var got solveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "six", got.Name)
	assert.Equal(t, 2, got.Agents)
	assert.Equal(t, 74, got.Reward)
	assert.Equal(t, 6, got.Metrics.Ticks)
	assert.LessOrEqual(t, got.Metrics.FinalFrontier, 3)

	out, _, err = execute(t, "solve", "-f", "testdata/six.yaml", "--horizon", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "reward: 13\n")
}

func TestSolveTrace(t *testing.T) {
	_, errOut, err := execute(t, "solve", "-f", "testdata/six.yaml", "--trace")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"Name"`, "spans are written to stderr")
}

func TestSolveErrors(t *testing.T) {
	_, _, err := execute(t, "solve")
	require.ErrorContains(t, err, "-f is required")

	_, _, err = execute(t, "solve", "-f", "testdata/missing.yaml")
	require.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = execute(t, "solve", "-f", "testdata/six.yaml", "--scorer", "greedy")
	require.ErrorContains(t, err, "greedy")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("start: Q\nhorizon: 3\nedges:\n  - {from: A, to: B, weight: 1}\n"), 0o600))
	_, _, err = execute(t, "solve", "-f", bad)
	require.ErrorContains(t, err, bad)
}

func TestBench(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	out, _, err := execute(t, "bench", "-f", "testdata/six.yaml", "-f", "testdata/valve.yaml", "--ceiling", "500", "--parallel", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"FILE", "REWARD", "TICKS", "DURATION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"testdata/six.yaml", "54", "6"}, strings.Fields(lines[1])[:3])
	assert.Equal(t, []string{"testdata/valve.yaml", "1651", "30"}, strings.Fields(lines[2])[:3])
}

func TestBenchErrors(t *testing.T) {
	_, _, err := execute(t, "bench")
	require.ErrorContains(t, err, "at least one -f")

	_, _, err = execute(t, "bench", "-f", "testdata/six.yaml", "-f", "testdata/missing.yaml")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "beamsched version dev"), out)
}
