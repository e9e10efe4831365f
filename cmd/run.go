package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingest pipeline in foreground",
	Long: `Run the ingest pipeline until the input ends or a signal arrives.

The run will:
  1. Load configuration and apply command-line overrides
  2. Initialize logging and metrics
  3. Open the input (file, stdin or live interface)
  4. Convert, filter and batch every record, then hand batches to the sink
  5. Flush the sink and print counters on exit
SIGTERM/SIGINT stop the run gracefully, SIGHUP reloads log settings and
filter rules.

Examples:
  ferry run -c ferry.yml
  ferry run -c ferry.yml --input capture.pcap --count 1000
  tail -F app.log | ferry run -c ferry.yml --input -`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRun(cmd, os.Stderr); err != nil {
			exitWithError("run failed", err)
		}
	},
}

var (
	runInput     string
	runInterface string
	runRules     string
	runMode      string
	runSkip      int
	runCount     int
	runPIDFile   string
)

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", `input file, "-" for stdin`)
	runCmd.Flags().StringVar(&runInterface, "interface", "", "capture live from this interface (linux)")
	runCmd.Flags().StringVarP(&runRules, "rules", "r", "", "deny-list pattern file")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "converter mode: auto|packet|log|null")
	runCmd.Flags().IntVar(&runSkip, "skip", 0, "records to discard before processing")
	runCmd.Flags().IntVar(&runCount, "count", 0, "stop after this many records are sent (0 = no limit)")
	runCmd.Flags().StringVarP(&runPIDFile, "pidfile", "p", "", "PID file path")
}

// overrides turns explicitly set flags into config overrides.
func overrides(cmd *cobra.Command) []config.LoadOption {
	var opts []config.LoadOption
	flags := cmd.Flags()
	set := func(flag, key string, value any) {
		if flags.Changed(flag) {
			opts = append(opts, config.WithOverride(key, value))
		}
	}
	set("input", "input.path", runInput)
	set("interface", "input.interface", runInterface)
	set("rules", "filter.rules", runRules)
	set("mode", "input.mode", runMode)
	set("skip", "input.skip", runSkip)
	set("count", "input.count", runCount)
	return opts
}

func runRun(cmd *cobra.Command, out io.Writer) error {
	d, err := daemon.New(configFile, runPIDFile, overrides(cmd)...)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return err
	}

	stats, err := d.Run()
	fmt.Fprintf(out, "ferry: %s\n", stats)
	return err
}
