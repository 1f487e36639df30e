package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/app"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/testutil"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// writeConfig returns a config file serving the fixture snapshot.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	snap := testutil.WriteSnapshot(t, dir, testutil.FixtureSnapshot())
	body := fmt.Sprintf("storage:\n  backend: snapshot\n  snapshot_path: %s\n%s", snap, extra)
	path := filepath.Join(dir, "codelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, snap
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(app.Open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand_Structure(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "codelink", root.Use)
	assert.NotEmpty(t, root.Short)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"search", "link", "rules", "catalog", "migrate", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	for _, flag := range []string{"config", "output", "log-level", "no-color", "timeout", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	_, err := execute(t, "version", "-c", cfg, "-o", "xml")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestVersionCmd_JSON(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, err := execute(t, "version", "-c", cfg, "-o", "json")
	require.NoError(t, err)

	var v versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, app.Version, v.Version)
}

func TestSearchDiagnoses_JSON(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, err := execute(t, "search", "diagnoses", "essential", "hypertension", "-c", cfg, "-o", "json", "-n", "3")
	require.NoError(t, err)

	var res struct {
		Candidates []catalog.Candidate `json:"candidates"`
		Degraded   bool                `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "I10", res.Candidates[0].Entry.Code)
	assert.True(t, res.Degraded)
}

func TestSearchDiagnoses_Table(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, err := execute(t, "search", "dx", "hypertension", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(out), "CODE")
	assert.Contains(t, out, "I10")
}

func TestSearch_RequiresText(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	_, err := execute(t, "search", "procedures", "-c", cfg)
	assert.Error(t, err)
}

func TestLink_UnknownDiagnosis(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	_, err := execute(t, "link", "z99.99", "-c", cfg)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLink_KnownDiagnosis(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, err := execute(t, "link", "s52.501a", "-c", cfg, "-o", "json")
	require.NoError(t, err)

	var res struct {
		Diagnosis catalog.CodeEntry `json:"diagnosis"`
		RuleTable string            `json:"rule_table"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "S52.501A", res.Diagnosis.Code)
	assert.Equal(t, linkage.DefaultTable().Version(), res.RuleTable)
}

func TestPrintError_IncludesCode(t *testing.T) {
	root := NewRootCommand()
	var buf bytes.Buffer
	root.SetErr(&buf)
	PrintError(root, errors.NotFound("no such code"))
	assert.Contains(t, buf.String(), string(errors.CodeNotFound))
	assert.Contains(t, buf.String(), "no such code")
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"Code", "Title"}, [][]string{{"I10", "Essential hypertension"}})
	assert.Contains(t, strings.ToUpper(out), "CODE")
	assert.Contains(t, out, "Essential hypertension")
	assert.Empty(t, FormatTable(nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
