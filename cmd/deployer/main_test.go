package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/artpar/deployer/internal/shell/journal"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "deployer dev (built unknown)\n", out)
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "launch")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestRun_PoliciesPrintsDefaultTable(t *testing.T) {
	clearEnv(t)

	code, out, _ := runCLI(t, "policies")
	require.Equal(t, ExitSuccess, code)

	table, err := deployment.ParsePolicies([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, deployment.DefaultPolicies(), table)
}

func TestRun_PoliciesInvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Controller: {role: registry}\n"), 0o644))

	code, _, errOut := runCLI(t, "policies", "--policies", path)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "error:")
}

func TestRun_DeployRequiresSender(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEPLOYER_JOURNAL_DSN", filepath.Join(t.TempDir(), "journal.db"))

	code, _, errOut := runCLI(t, "deploy", "--log-level", "error")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "network.from is required")
}

func TestRun_DeployMissingContracts(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	code, _, _ := runCLI(t, "deploy",
		"--log-level", "error",
		"--from", "0x00000000000000000000000000000000000000d0",
		"--contracts", filepath.Join(dir, "missing.json"),
		"--journal=false",
	)
	assert.Equal(t, ExitConfigError, code)
}

func TestRun_HistoryListsRuns(t *testing.T) {
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "journal.db")

	j, err := journal.NewSQLiteJournal(dsn)
	require.NoError(t, err)
	entry := journal.NewRun("4", "rinkeby", 100)
	require.NoError(t, j.CreateRun(context.Background(), entry))
	require.NoError(t, j.RecordDecision(context.Background(), &journal.Decision{
		RunID:    entry.ID,
		Stage:    "upload",
		Artifact: "ShareToken",
		Key:      "ShareToken",
		Action:   "uploaded",
		Reason:   "fresh registry",
	}))
	require.NoError(t, j.FinishRun(context.Background(), entry.ID, "0xc1", nil))
	require.NoError(t, j.Close())

	code, out, _ := runCLI(t, "history", "--journal-dsn", dsn)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, entry.ID)
	assert.Contains(t, out, "rinkeby")
	assert.Contains(t, out, "succeeded")

	code, out, _ = runCLI(t, "history", "--journal-dsn", dsn, "--run", entry.ID)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "ShareToken")
	assert.Contains(t, out, "fresh registry")

	code, _, _ = runCLI(t, "history", "--journal-dsn", dsn, "--run", "missing")
	assert.Equal(t, ExitJournalError, code)
}
