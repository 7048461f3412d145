package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"verax/internal/logger"
	"verax/pkg/models"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show or import analyst rules and insurer payment terms",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the stored analyst rules and insurer terms",
	RunE:  runRulesList,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import [yaml-file]",
	Short: "Replace analyst rules and insurer terms from a YAML file",
	Long: `Replace the stored settings with the contents of a YAML file. A section that
is absent from the file is left untouched.

  analysts:
    - name: Juana Gómez
      requiresInvoice: true
      plusPercentDefault: 10
  insurers:
    - insurer: La Segunda
      days: 60
      toleranceDays: 5`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesImport,
}

// RulesFile is the YAML layout read by rules import.
type RulesFile struct {
	Analysts []models.AnalystRule `yaml:"analysts"`
	Insurers []models.InsurerTerm `yaml:"insurers"`
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesImportCmd)

	rulesImportCmd.Flags().Bool("dry-run", false, "Validate the file without saving")
}

// parseRules decodes and validates a rules file. Duplicate names are rejected.
func parseRules(data []byte) (*RulesFile, error) {
	var rf RulesFile
	if err := yaml.UnmarshalStrict(data, &rf); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}

	seen := make(map[string]bool)
	for i := range rf.Analysts {
		if err := rf.Analysts[i].Validate(); err != nil {
			return nil, fmt.Errorf("analysts[%d]: %w", i, err)
		}
		if _, dup := models.FindAnalystRule(rf.Analysts[:i], rf.Analysts[i].Name); dup {
			return nil, fmt.Errorf("analysts[%d]: duplicate analyst %q", i, rf.Analysts[i].Name)
		}
	}
	for i := range rf.Insurers {
		if err := rf.Insurers[i].Validate(); err != nil {
			return nil, fmt.Errorf("insurers[%d]: %w", i, err)
		}
		if seen[rf.Insurers[i].Insurer] {
			return nil, fmt.Errorf("insurers[%d]: duplicate insurer %q", i, rf.Insurers[i].Insurer)
		}
		seen[rf.Insurers[i].Insurer] = true
	}
	return &rf, nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("rules")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	rules, err := a.store.AnalystRules(ctx)
	if err != nil {
		return err
	}
	terms, err := a.store.InsurerTerms(ctx)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(RulesFile{Analysts: rules, Insurers: terms})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("rules")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	rf, err := parseRules(data)
	if err != nil {
		return err
	}
	fmt.Printf("%d analyst rule(s), %d insurer term(s)\n", len(rf.Analysts), len(rf.Insurers))
	if dryRun {
		return nil
	}

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	if rf.Analysts != nil {
		if err := a.store.SaveAnalystRules(ctx, rf.Analysts); err != nil {
			return err
		}
	}
	if rf.Insurers != nil {
		if err := a.store.SaveInsurerTerms(ctx, rf.Insurers); err != nil {
			return err
		}
	}
	log.Info().
		Int("analysts", len(rf.Analysts)).
		Int("insurers", len(rf.Insurers)).
		Msg("Settings imported")
	return nil
}
