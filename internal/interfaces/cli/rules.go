package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/minio"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const eventSource = "codelink-cli"

// NewRulesCmd builds the rule table commands.
func NewRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate, inspect and publish clinical rule tables",
	}
	rulesCmd.AddCommand(newRulesValidateCmd(), newRulesDumpCmd(), newRulesPublishCmd())
	return rulesCmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Compile a YAML rule table and report its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := linkage.LoadRuleFile(args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, ruleTableView(table.Spec()))
		},
	}
}

func newRulesDumpCmd() *cobra.Command {
	var builtin bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the configured rule table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			table := linkage.DefaultTable()
			if path := cliCtx.Config.Engine.Linkage.RulesPath; path != "" && !builtin {
				if table, err = linkage.LoadRuleFile(path); err != nil {
					return err
				}
			}
			out, err := yaml.Marshal(table)
			if err != nil {
				return errors.Wrap(err, errors.CodeSerialization, "failed to encode rule table")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", false, "dump the built-in table even when a rules file is configured")
	return cmd
}

func newRulesPublishCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Upload a validated rule table to object storage and announce it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if key == "" {
				key = cliCtx.Config.Engine.Linkage.RulesObject
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, errors.CodeInvalidParam, "failed to read rule table").WithDetail(args[0])
			}
			table, err := linkage.ParseRuleTable(data)
			if err != nil {
				return err
			}
			evt := kafka.NewRefreshEvent(kafka.EventRulesPublished, eventSource)
			evt.Version = table.Version()
			evt.ObjectKey = key
			if err := publishObject(cmd, cliCtx, key, data, "application/yaml", evt); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rule table %s published to %s", table.Version(), key))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "object key (default: engine.linkage.rules_object)")
	return cmd
}

// publishObject uploads data to MinIO and, when Kafka is enabled, emits evt
// on the refresh topic.
func publishObject(cmd *cobra.Command, cliCtx *CLIContext, key string, data []byte, contentType string, evt *kafka.RefreshEvent) error {
	cfg := cliCtx.Config
	if !cfg.MinIO.Enabled {
		return errors.New(errors.CodeFeatureDisabled, "object storage is not enabled").WithDetail("set minio.enabled")
	}
	if key == "" {
		return errors.InvalidParam("object key is required")
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	store, err := minio.NewClient(ctx, cfg.MinIO, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	if _, err := store.Put(ctx, key, data, contentType); err != nil {
		return err
	}

	if !cfg.Kafka.Enabled {
		return nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer producer.Close()
	return producer.PublishEvent(ctx, cfg.Kafka.Topic, evt)
}

type ruleTableView linkage.RuleTableSpec

func (v ruleTableView) TableHeaders() []string {
	return []string{"ID", "Category", "Delta", "Kind", "Rationale"}
}

func (v ruleTableView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Rules))
	for _, r := range v.Rules {
		rows = append(rows, []string{
			r.ID,
			string(r.Category),
			strconv.FormatFloat(r.Delta, 'f', 2, 64),
			r.Kind,
			truncate(r.Rationale, 60),
		})
	}
	return rows
}

func (v ruleTableView) String() string {
	return fmt.Sprintf("rule table %s: %d rules", v.Version, len(v.Rules))
}
