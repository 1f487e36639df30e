package linkage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func TestStaticSource(t *testing.T) {
	tbl, err := StaticSource{}.LoadRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultTableVersion, tbl.Version())

	custom, err := NewTable(RuleTableSpec{Version: "one", Rules: DefaultRuleTableSpec().Rules[:1]})
	require.NoError(t, err)
	got, err := StaticSource{Table: custom}.LoadRules(context.Background())
	require.NoError(t, err)
	assert.Same(t, custom, got)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: site-only
rules:
  - id: boost_site_match
    category: boosting
    delta: 0.1
    rationale: same anatomical site
    kind: site_match
`), 0o600))

	tbl, err := FileSource{Path: path}.LoadRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "site-only", tbl.Version())
	assert.Len(t, tbl.Rules(), 1)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.LoadRules(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeRuleTableInvalid))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileSource{Path: path}.LoadRules(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
