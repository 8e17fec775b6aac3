// Command prior-art-search runs prior-art searches against PatentsView and
// writes analysis reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelkehle/prior-art-engine/internal/config"
	"github.com/joelkehle/prior-art-engine/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg    config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prior-art-search",
	Short: "Search US patents for prior art and write analysis reports",
	Long: `prior-art-search turns a free-text invention description into several
PatentsView search strategies, scores every candidate patent for relevance,
fetches claims for the best matches, and writes a markdown, HTML, or PDF
report. Finished runs are stored locally so reports can be regenerated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bootLog := logging.NewLogger(os.Getenv(config.EnvPrefix + "_LOG_LEVEL"))
		bootLog.SetOutput(os.Stderr)
		config.LoadEnv(bootLog)

		cfgFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(config.New(cfgFile))
		if err != nil {
			return err
		}
		cfg = loaded
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.LogLevel = "debug"
		}
		logger = logging.NewLogger(cfg.LogLevel)
		logger.SetOutput(os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./prior-art.yaml or ~/.config/prior-art/prior-art.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.Version = version
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}
