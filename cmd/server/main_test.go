package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"pixelboard/internal/config"
	"pixelboard/internal/models"
	"pixelboard/internal/repository"
	"pixelboard/internal/world"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func saveTestHistory(t *testing.T) string {
	t.Helper()

	w, err := world.New(2, 2, 2)
	require.NoError(t, err)
	for _, ev := range []models.ChangeEvent{
		models.Paint{X: 0, Y: 0, Color: models.Black()},
		models.Paint{X: 1, Y: 1, Color: models.Color{R: 0xFF}},
		models.Resize{Width: 3, Height: 2, Anchor: models.AnchorTopLeft},
	} {
		_, _, err := w.ApplyEvent(ev)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "history.bin")
	store := repository.NewHistoryStore(path, zaptest.NewLogger(t))
	require.NoError(t, w.ReadHistory(store.Save))
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := saveTestHistory(t)

	out, err := runCmd(t, "inspect", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "changes:")
	assert.Regexp(t, `changes:\s+3`, out)
	assert.Regexp(t, `snapshots:\s+2`, out)
	assert.Regexp(t, `dimensions:\s+3x2`, out)
	assert.Regexp(t, `(?m)^1\s+2\s+2x2$`, out)
}

func TestInspect_AtWithBoard(t *testing.T) {
	path := saveTestHistory(t)

	out, err := runCmd(t, "inspect", "-f", path, "--at", "1", "--board")
	require.NoError(t, err)
	assert.Regexp(t, `dimensions:\s+2x2`, out)
	assert.Contains(t, out, "#000000 #FFFFFF\n#FFFFFF #FFFFFF\n")
}

func TestInspect_Errors(t *testing.T) {
	path := saveTestHistory(t)

	_, err := runCmd(t, "inspect", "--file", filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, repository.ErrIO)

	_, err = runCmd(t, "inspect", "--file", path, "--at", "9")
	assert.Error(t, err)
}

func TestServeOptions_Apply(t *testing.T) {
	cfg := &config.Config{ServerHost: "0.0.0.0", ServerPort: "8080", PersistencePath: "history.bin"}

	require.NoError(t, serveOptions{addr: "127.0.0.1:9000", persistencePath: "/tmp/h.bin"}.apply(cfg))
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "/tmp/h.bin", cfg.PersistencePath)

	assert.Error(t, serveOptions{addr: "no-port"}.apply(cfg))
}
