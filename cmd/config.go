package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ferry/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and FERRY_*
environment variables are merged.

Examples:
  ferry config -c ferry.yml
  FERRY_LOG_LEVEL=debug ferry config`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runShowConfig(configFile, os.Stdout); err != nil {
			exitWithError("failed to load config", err)
		}
	},
}

func runShowConfig(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"ferry": cfg}); err != nil {
		return err
	}
	return enc.Close()
}
