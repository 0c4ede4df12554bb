package cdls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/source"
	"github.com/dbazile/cdls/pkg/cdls/state"
	"github.com/dbazile/cdls/pkg/cdls/warehouse"
)

type fakeSource struct {
	id       string
	err      error
	executed int
}

func (f *fakeSource) Identifier() string  { return f.id }
func (f *fakeSource) Type() string        { return "FakeSource" }
func (f *fakeSource) Description() string { return "fake " + f.id }

func (f *fakeSource) Execute(ctx context.Context) (*source.Report, error) {
	f.executed++
	report := &source.Report{
		Identifier:      f.id,
		NumberProcessed: 1,
		NumberSuccesses: 1,
		Successful:      f.err == nil,
	}
	if f.err != nil {
		report.NumberSuccesses = 0
	}
	return report, f.err
}

type fakeStats struct {
	recorded []string
}

func (f *fakeStats) RecordLoad(report *source.Report, remarks string) error {
	f.recorded = append(f.recorded, fmt.Sprintf("%s remarks=%q", report.String(), remarks))
	return nil
}

func (f *fakeStats) LatestRecordDate(identifier string) (time.Time, error) {
	return time.Time{}, nil
}

func newTestCDLS(maxConcurrency int, sources ...*fakeSource) (*CDLS, *fakeStats) {
	stats := &fakeStats{}
	c := &CDLS{
		cfg:     &config.Config{MaxConcurrency: maxConcurrency},
		log:     zerolog.Nop(),
		stats:   stats,
		sources: make(map[string]source.Source),
	}
	for _, src := range sources {
		c.sources[src.id] = src
	}
	return c, stats
}

func TestListRegisteredSources(t *testing.T) {
	c, _ := newTestCDLS(1, &fakeSource{id: "zulu"}, &fakeSource{id: "alpha"})

	infos := c.ListRegisteredSources()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Identifier)
	assert.Equal(t, "zulu", infos[1].Identifier)
	assert.Equal(t, "FakeSource", infos[0].Type)
}

func TestPerformLoad(t *testing.T) {
	src := &fakeSource{id: "local0"}
	c, stats := newTestCDLS(1, src)

	report, err := c.PerformLoad(context.Background(), " local0 ")
	require.NoError(t, err)
	assert.True(t, report.Successful)
	assert.Equal(t, 1, src.executed)
	require.Len(t, stats.recorded, 1)
	assert.Contains(t, stats.recorded[0], "local0 OK")
}

func TestPerformLoadUnregistered(t *testing.T) {
	c, _ := newTestCDLS(1)

	_, err := c.PerformLoad(context.Background(), "ghost")
	var unregistered *UnregisteredSourceError
	require.ErrorAs(t, err, &unregistered)
	assert.Equal(t, "Source ghost is not registered", err.Error())
}

func TestPerformAllLoadsContinuesOnError(t *testing.T) {
	bad := &fakeSource{id: "bad", err: errors.New("boom")}
	good := &fakeSource{id: "good"}
	c, stats := newTestCDLS(2, bad, good)

	reports, err := c.PerformAllLoads(context.Background(), false)
	require.Error(t, err)
	assert.Len(t, reports, 2)
	assert.Equal(t, 1, bad.executed)
	assert.Equal(t, 1, good.executed)
	assert.Len(t, stats.recorded, 2)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, merr.Error(), "bad: boom")
}

func TestPerformAllLoadsHaltOnError(t *testing.T) {
	// alphabetical ordering puts the failing source first; with a single
	// worker the remaining source never runs
	bad := &fakeSource{id: "a-bad", err: errors.New("boom")}
	good := &fakeSource{id: "z-good"}
	c, _ := newTestCDLS(1, bad, good)

	reports, err := c.PerformAllLoads(context.Background(), true)
	require.Error(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, bad.executed)
	assert.Zero(t, good.executed)
}

func writeTestWorkspace(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()

	queue := filepath.Join(dir, "queue")
	archive := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(queue, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(queue, "drop.json"),
		[]byte(`[{"id": 1, "title": "lorem ipsum", "created_on": "2023-05-01T12:00:00"}]`), 0o644))

	configPath = filepath.Join(dir, "sources.json")
	contents := fmt.Sprintf(`{
		"max_concurrency": 2,
		"registered": [
			{"id": "local0", "type": "localfile", "description": "drop folder",
			 "options": {"queue_path": %q, "archive_path": %q}}
		]
	}`, queue, archive)
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o644))

	return configPath, filepath.Join(dir, "cdls_sqlite.db")
}

func TestInitializeAndLoadEndToEnd(t *testing.T) {
	configPath, dbPath := writeTestWorkspace(t)

	c, err := Initialize(Options{ConfigPath: configPath, DBPath: dbPath, Log: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, c.InstallSchema())

	report, err := c.PerformLoad(context.Background(), "local0")
	require.NoError(t, err)
	assert.True(t, report.Successful)
	assert.Equal(t, 1, report.NumberProcessed)

	var docs int64
	require.NoError(t, c.db.Model(&warehouse.Document{}).Count(&docs).Error)
	assert.EqualValues(t, 1, docs)

	var stats int64
	require.NoError(t, c.db.Model(&state.LoadStat{}).Count(&stats).Error)
	assert.EqualValues(t, 1, stats)
}

func TestInitializeRejectsUnknownSourceType(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"registered": [{"id": "x", "type": "carrier-pigeon", "description": "no"}]
	}`), 0o644))

	_, err := Initialize(Options{ConfigPath: configPath, DBPath: filepath.Join(dir, "db"), Log: zerolog.Nop()})
	var cfgErr *config.SourceConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "Unknown source type")
}

func TestInitializeRejectsDuplicateIdentifiers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"registered": [
			{"id": "dup", "type": "localfile", "description": "one",
			 "options": {"queue_path": "/q", "archive_path": "/a"}},
			{"id": "dup", "type": "localfile", "description": "two",
			 "options": {"queue_path": "/q", "archive_path": "/a"}}
		]
	}`), 0o644))

	_, err := Initialize(Options{ConfigPath: configPath, DBPath: filepath.Join(dir, "db"), Log: zerolog.Nop()})
	var cfgErr *config.SourceConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "Duplicate source identifier")
}
