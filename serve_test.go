package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivescan/internal/config"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/walk"
)

func reloadFixture(t *testing.T, level string) (*CLIContext, *config.Holder) {
	t.Helper()
	isolateEnv(t)

	path := writeCLIConfig(t, "[logging]\nlog_level = \""+level+"\"\n")

	cfg, _, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	logger, lv := buildLogger(os.Stderr, cfg, CLIFlags{})
	cc := &CLIContext{Cfg: cfg, CfgPath: path, Logger: logger, Level: lv}

	return cc, config.NewHolder(cfg, path)
}

func TestReloadConfig_AppliesLogLevel(t *testing.T) {
	cc, holder := reloadFixture(t, "info")
	require.Equal(t, slog.LevelInfo, cc.Level.Level())

	require.NoError(t, os.WriteFile(holder.Path(), []byte("[logging]\nlog_level = \"debug\"\n"), 0o600))
	reloadConfig(cc, holder)

	assert.Equal(t, slog.LevelDebug, cc.Level.Level())
	assert.Equal(t, "debug", holder.Config().Logging.LogLevel)
}

func TestReloadConfig_InvalidKeepsPrevious(t *testing.T) {
	cc, holder := reloadFixture(t, "warn")
	before := holder.Config()

	require.NoError(t, os.WriteFile(holder.Path(), []byte("[logging]\nlog_level = \"loud\"\n"), 0o600))
	reloadConfig(cc, holder)

	assert.Equal(t, slog.LevelWarn, cc.Level.Level())
	assert.Same(t, before, holder.Config())
}

func TestReloadConfig_UnchangedFileKeepsSnapshot(t *testing.T) {
	cc, holder := reloadFixture(t, "info")
	before := holder.Config()

	reloadConfig(cc, holder)

	assert.Same(t, before, holder.Config())
	assert.Equal(t, slog.LevelInfo, cc.Level.Level())
}

func TestReloadConfig_VerboseFlagWins(t *testing.T) {
	cc, holder := reloadFixture(t, "info")
	cc.Flags.Verbose = true
	cc.Level.Set(effectiveLevel("info", cc.Flags))

	require.NoError(t, os.WriteFile(holder.Path(), []byte("[logging]\nlog_level = \"error\"\n"), 0o600))
	reloadConfig(cc, holder)

	assert.Equal(t, slog.LevelDebug, cc.Level.Level())
}

// gatedLister blocks every listing until gate is closed.
type gatedLister struct {
	gate chan struct{}
}

func (l gatedLister) ListPage(ctx context.Context, _, _ string) (walk.Page, error) {
	select {
	case <-l.gate:
		return walk.Page{}, nil
	case <-ctx.Done():
		return walk.Page{}, ctx.Err()
	}
}

func TestShutdown_NoJobs(t *testing.T) {
	coord := newCLICoordinator(t, fakeCreds{}, sampleTree())

	err := shutdown(&http.Server{}, coord, time.Second, slog.Default())
	assert.NoError(t, err)
}

func TestShutdown_TimesOutOnRunningJob(t *testing.T) {
	lister := gatedLister{gate: make(chan struct{})}
	coord := newCLICoordinator(t, fakeCreds{}, lister)

	_, err := coord.Submit(context.Background(), "root")
	require.NoError(t, err)

	err = shutdown(&http.Server{}, coord, 50*time.Millisecond, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")

	close(lister.gate)
	coord.Wait()
}

func TestSweepResults_RemovesExpired(t *testing.T) {
	dir := t.TempDir()
	store := results.NewLocalStore(dir, nil)

	_, err := store.Save(context.Background(), "old", nil)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), "new", nil)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("old"), old, old))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Sweeps once, then sees the canceled context.
	sweepResults(ctx, store, 24*time.Hour, slog.Default())

	_, err = os.Stat(store.Path("old"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "scan_results_new.csv"))
	assert.NoError(t, err)
}
