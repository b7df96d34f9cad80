package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/rules"
	"github.com/solatis/intervalq/internal/types"
)

var compileCmd = &cobra.Command{
	Use:   "compile [rule.json]",
	Short: "Compile an interval rule and print its source tree",
	Long: `Compile reads a query ({"intervals": {field: rule}} or {field: rule}) from a
file or stdin and prints the compiled interval source. With --field the input
is a bare rule compiled against that field. The mapping comes from --mapping
or, with --index, from the mapping store. --normalize adds the parsed rule
in canonical form.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().String("mapping", "", "index mapping JSON file")
	compileCmd.Flags().String("index", "", "stored index whose mapping to use")
	compileCmd.Flags().String("field", "", "target field for a bare rule")
	compileCmd.Flags().Bool("no-scripts", false, "reject script filters")
	compileCmd.Flags().Bool("normalize", false, "also print the parsed rule with defaults omitted")
}

// compileOutput is printed as JSON on success.
type compileOutput struct {
	Field      string      `json:"field"`
	Expression string      `json:"expression"`
	Cacheable  bool        `json:"cacheable"`
	Boost      float64     `json:"boost"`
	Name       string      `json:"name,omitempty"`
	Rule       *types.Rule `json:"rule,omitempty"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if noScripts, _ := cmd.Flags().GetBool("no-scripts"); noScripts {
		cfg.Script.Enabled = false
	}
	mappingFile, _ := cmd.Flags().GetString("mapping")
	index, _ := cmd.Flags().GetString("index")
	field, _ := cmd.Flags().GetString("field")
	normalize, _ := cmd.Flags().GetBool("normalize")

	var resolver *mapping.Resolver
	switch {
	case mappingFile != "" && index != "":
		return fmt.Errorf("--mapping and --index are mutually exclusive")
	case mappingFile != "":
		data, err := os.ReadFile(mappingFile)
		if err != nil {
			return fmt.Errorf("failed to read mapping: %w", err)
		}
		m, err := mapping.Parse(data, cfg.Analysis.DefaultAnalyzer)
		if err != nil {
			return err
		}
		if resolver, err = mapping.NewResolver(m); err != nil {
			return err
		}
	case index != "":
		database, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if resolver, err = store.Resolver(ctx, index); err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --mapping or --index is required")
	}

	raw, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	engine := rules.NewEngine(scriptCompiler(cfg.Script, logger), logger)

	out := compileOutput{Field: field, Boost: 1}
	if field != "" {
		src, cacheable, err := engine.Compile(ctx, raw, field, resolver)
		if err != nil {
			return err
		}
		out.Expression, out.Cacheable = src.String(), cacheable
	} else {
		q, err := engine.CompileQuery(ctx, raw, resolver)
		if err != nil {
			return err
		}
		out = compileOutput{
			Field:      q.Field,
			Expression: q.Source.String(),
			Cacheable:  q.Cacheable,
			Boost:      q.Boost,
			Name:       q.Name,
		}
	}

	if normalize {
		if out.Rule, err = parsedRule(raw, field); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parsedRule re-parses an input that already compiled, for --normalize.
func parsedRule(raw []byte, field string) (*types.Rule, error) {
	if field != "" {
		return rules.ParseRule(raw)
	}
	q, err := rules.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	return &q.Rule, nil
}

// readInput reads the rule from the named file, or stdin for "-" or no
// argument.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rule: %w", err)
	}
	return data, nil
}
