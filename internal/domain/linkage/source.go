package linkage

import "context"

// RuleSource supplies a rule table.  Sources are consulted at startup and on
// every reload signal.
type RuleSource interface {
	LoadRules(ctx context.Context) (*Table, error)
}

// StaticSource always returns the same table; nil means the built-in one.
type StaticSource struct {
	Table *Table
}

// LoadRules implements RuleSource.
func (s StaticSource) LoadRules(context.Context) (*Table, error) {
	if s.Table == nil {
		return DefaultTable(), nil
	}
	return s.Table, nil
}

// FileSource reads a YAML rule table from disk on every load.
type FileSource struct {
	Path string
}

// LoadRules implements RuleSource.
func (s FileSource) LoadRules(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadRuleFile(s.Path)
}
