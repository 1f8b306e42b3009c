package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pathembed/config"
	"pathembed/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pathembed",
	Short: "Embed pathology reports and export aligned vectors",
	Long: `pathembed downloads a zipped corpus of pathology reports, parses one
record per row, embeds the report texts in fixed-size chunks through a remote
embedding API and writes identifier-aligned vectors to a TSV file. Embeddings
are cached locally by record index so repeated runs only embed what is new.

Example usage:
  pathembed embed                       # Embed the TCGA reports corpus
  pathembed inspect                     # Show what the source archive holds
  pathembed cache stats                 # Count cached embeddings
  pathembed correlate --metric spearman # Correlate cancer-type centroids`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := config.LoadEnv(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = logging.WithRun(logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Writer: cmd.ErrOrStderr(),
		}))
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pathembed.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory for config, .env and cache (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
