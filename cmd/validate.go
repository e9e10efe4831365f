package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/matcher"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without opening the input or the sink.

The filter rules, when configured, are compiled as well.

Examples:
  ferry validate -c ferry.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	patterns := 0
	if cfg.Filter.Rules != "" {
		m, err := matcher.CompileFile(cfg.Filter.Rules, matcher.WithEngine(cfg.Filter.Engine))
		if err != nil {
			return err
		}
		patterns = m.Len()
		m.Close()
	}

	input := cfg.Input.Path
	if cfg.Input.Interface != "" {
		input = "interface " + cfg.Input.Interface
	} else if input == "" {
		input = "stdin"
	}

	fmt.Fprintf(out, "VALID: input %s (mode %s), %d filter pattern(s), sink %s\n",
		input, cfg.Input.Mode, patterns, cfg.Sink.Type)
	return nil
}
