package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/application/retrieval"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// withEngine opens the backends, builds the engine and runs fn.
func withEngine(cmd *cobra.Command, fn func(svc engine.Service) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	cmd.SetContext(ctx)

	infra, err := cliCtx.Open(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.NewEngine(ctx)
	if err != nil {
		return err
	}
	return fn(svc)
}

// NewSearchCmd builds "search diagnoses" and "search procedures".
func NewSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Rank diagnosis or procedure codes for free text",
	}

	var limit int
	diagnosesCmd := &cobra.Command{
		Use:     "diagnoses <text>...",
		Aliases: []string{"dx"},
		Short:   "Search the diagnosis vocabulary",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(svc engine.Service) error {
				res, err := svc.SearchDiagnoses(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, searchView{res})
			})
		},
	}
	diagnosesCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (0 uses the configured default)")

	proceduresCmd := &cobra.Command{
		Use:     "procedures <text>...",
		Aliases: []string{"px"},
		Short:   "Search active procedure codes",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(svc engine.Service) error {
				res, err := svc.SearchProcedures(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, searchView{res})
			})
		},
	}
	proceduresCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (0 uses the configured default)")

	searchCmd.AddCommand(diagnosesCmd, proceduresCmd)
	return searchCmd
}

// NewLinkCmd builds "link <diagnosis-code>".
func NewLinkCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "link <diagnosis-code>",
		Short: "List clinically valid procedures for a confirmed diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(strings.TrimSpace(args[0]))
			if code == "" {
				return errors.InvalidParam("diagnosis code is required")
			}
			return withEngine(cmd, func(svc engine.Service) error {
				res, err := svc.LinkProcedures(cmd.Context(), code, limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, linkView{res})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum links (0 uses the configured default)")
	return cmd
}

type searchView struct {
	*retrieval.SearchResult
}

func (v searchView) TableHeaders() []string {
	return []string{"Rank", "Code", "Title", "Score", "Lexical", "Vector", "Source"}
}

func (v searchView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Candidates))
	for i, c := range v.Candidates {
		vec := "-"
		if c.VectorSimilarity != nil {
			vec = formatScore(*c.VectorSimilarity)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			c.Entry.Code,
			truncate(c.Entry.Title, 60),
			colorizeScore(c.CombinedScore),
			formatScore(c.LexicalScore),
			vec,
			string(c.SourceKind),
		})
	}
	return rows
}

func (v searchView) String() string {
	var sb strings.Builder
	if v.Degraded {
		fmt.Fprintf(&sb, "%s lexical results only (%s)\n", color.YellowString("degraded:"), v.DegradedReason)
	}
	for i, c := range v.Candidates {
		fmt.Fprintf(&sb, "%2d. %-10s %s  %s\n", i+1, c.Entry.Code, formatScore(c.CombinedScore), c.Entry.Title)
	}
	if len(v.Candidates) == 0 {
		sb.WriteString("no matches\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

type linkView struct {
	*engine.LinkResult
}

func (v linkView) TableHeaders() []string {
	return []string{"Procedure", "Title", "Score", "Status", "Relationship", "Rules"}
}

func (v linkView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Links))
	for _, l := range v.Links {
		rows = append(rows, []string{
			l.Procedure.Code,
			truncate(l.Procedure.Title, 50),
			formatScore(l.ValidationScore),
			colorizeStatus(l.Status),
			string(l.RelationshipType),
			ruleIDs(l.AppliedRules),
		})
	}
	return rows
}

func (v linkView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (rules %s, %d evaluated, source %s)\n",
		v.Diagnosis.Code, v.Diagnosis.Title, v.RuleTable, v.Evaluated, v.CandidateSource)
	if v.Degraded {
		fmt.Fprintf(&sb, "%s %s\n", color.YellowString("degraded:"), v.DegradedReason)
	}
	for _, l := range v.Links {
		fmt.Fprintf(&sb, "  %-8s %s  %-12s %s\n", l.Procedure.Code, formatScore(l.ValidationScore), l.RelationshipType, l.Procedure.Title)
		if l.Rationale != "" {
			fmt.Fprintf(&sb, "           %s\n", l.Rationale)
		}
	}
	if len(v.Links) == 0 {
		sb.WriteString("  no approved procedures\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatScore(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }

func colorizeScore(f float64) string {
	s := formatScore(f)
	switch {
	case f >= 0.8:
		return color.GreenString(s)
	case f >= 0.5:
		return color.YellowString(s)
	default:
		return s
	}
}

func colorizeStatus(s catalog.LinkStatus) string {
	if s == catalog.LinkApproved {
		return color.GreenString(string(s))
	}
	return color.RedString(string(s))
}

func ruleIDs(rules []catalog.AppliedRule) string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.RuleID
	}
	return strings.Join(ids, ",")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
