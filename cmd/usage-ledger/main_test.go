package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/usage-ledger/pkg/config"
)

const testDate = "2024-05-01"

// setupEnv points every path the CLI touches at temp directories.
func setupEnv(t *testing.T) (home, inbox string) {
	t.Helper()

	home = t.TempDir()
	inbox = filepath.Join(home, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0700))

	t.Setenv("HOME", home)
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvRules, "")
	t.Setenv(config.EnvDB, filepath.Join(home, "ledger.db"))
	t.Setenv(config.EnvTimeZone, "UTC")
	t.Setenv(config.EnvInbox, inbox)
	t.Setenv(config.EnvLogLevel, "error")

	return home, inbox
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func ms(hour, minute int) int64 {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC).UnixMilli()
}

func writeExport(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "export.jsonl")
	content := fmt.Sprintf(`{"package":"com.duolingo","start":%d,"end":%d}`+"\n", ms(9, 0), ms(9, 10)) +
		fmt.Sprintf(`{"package":"com.tencent.mm","start":%d,"end":%d}`+"\n", ms(12, 0), ms(12, 30))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestIngestValidateSummary(t *testing.T) {
	_, inbox := setupEnv(t)
	path := writeExport(t, inbox)

	out, err := execute(t, "ingest", path, "--format", "json")
	require.NoError(t, err)

	var ingested struct {
		Files    int      `json:"files"`
		Sessions int      `json:"sessions"`
		Dates    []string `json:"dates"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(out)).Decode(&ingested))
	assert.Equal(t, 1, ingested.Files)
	assert.Equal(t, 2, ingested.Sessions)
	assert.Equal(t, []string{testDate}, ingested.Dates)

	out, err = execute(t, "ingest", path, "--format", "simple")
	require.NoError(t, err, "re-ingesting a read file is a no-op")
	assert.NotEmpty(t, out)

	out, err = execute(t, "validate", "--date", testDate, "--strict", "--format", "json")
	require.NoError(t, err)
	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	assert.NotEmpty(t, reports)

	out, err = execute(t, "summary", "--date", testDate)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage summary for "+testDate)
}

func TestIngestFromInbox(t *testing.T) {
	_, inbox := setupEnv(t)
	writeExport(t, inbox)

	out, err := execute(t, "ingest", "--no-aggregate", "--format", "json", "--compact")
	require.NoError(t, err)
	assert.Contains(t, out, `"sessions":2`)
}

func TestAggregateAndRepair(t *testing.T) {
	_, inbox := setupEnv(t)
	writeExport(t, inbox)

	_, err := execute(t, "ingest", "--no-aggregate", "-o", "simple")
	require.NoError(t, err)

	out, err := execute(t, "aggregate", "-d", testDate, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"date": "`+testDate+`"`)

	_, err = execute(t, "repair", "-d", testDate, "-o", "table")
	require.NoError(t, err)
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate", "--check")
	require.NoError(t, err)
	assert.Equal(t, "Migration needed: no\n", out)

	_, err = execute(t, "migrate", "-o", "simple")
	require.NoError(t, err)
}

func TestUnknownFormat(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "validate", "--date", testDate, "-o", "xml")
	assert.Error(t, err)
}

func TestRulesCheck(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "rules", "check", "-p", "com.duolingo")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: rules")
	assert.Contains(t, out, "built-in table")
	assert.Contains(t, out, "com.duolingo:")

	_, err = execute(t, "rules", "check", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	out, err = execute(t, "rules", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# Source: built-in table")
}

func TestRulesWatchRequiresPath(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "rules", "watch")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	home, _ := setupEnv(t)
	path := filepath.Join(home, "custom.yaml")

	out, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", "--output", path)
	assert.Error(t, err, "existing file is kept without --force")

	_, err = execute(t, "config", "init", "--output", path, "--force")
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# Source: "+path)
	assert.Contains(t, out, "storage:")

	out, err = execute(t, "--config", path, "config", "show", "-o", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = execute(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "usage-ledger.yaml")
	assert.Contains(t, out, "Active configuration:")
}

func TestInvalidLogLevelFlag(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "--log-level", "loud", "summary")
	assert.Error(t, err)
}
