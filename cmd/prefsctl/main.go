// Command prefsctl inspects and edits dashboard settings in any supported
// backend, and resolves the effective theme from a system preference file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/secureguard/prefs"
)

var (
	// Global flags
	configPath  string
	backendName string
	filePath    string
	redisAddr   string
	badgerDir   string
	output      string
	verbose     bool
	timeout     time.Duration

	cfg    = prefs.DefaultConfig()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "prefsctl",
	Short: "Inspect and edit SecureGuard dashboard settings",
	Long: `prefsctl reads and writes the persisted dashboard settings record.

Settings are validated against the schema on every read; invalid records
are corrected field by field and written back. Storage failures never
abort a command: the store falls back to memory and the failure is logged.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l

		if configPath != "" {
			if cfg, err = prefs.LoadConfig(configPath); err != nil {
				return err
			}
		}
		hookSignals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		capitan.Shutdown()
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVarP(&backendName, "backend", "b", "file", "Storage backend: file, redis, badger or memory")
	pf.StringVar(&filePath, "file", "prefs.json", "Document path for the file backend")
	pf.StringVar(&redisAddr, "redis-addr", "localhost:6379", "Address for the redis backend")
	pf.StringVar(&badgerDir, "badger-dir", "prefs.db", "Directory for the badger backend")
	pf.StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for one-shot commands")

	setCmd.AddCommand(setThemeCmd, setLanguageCmd, setPrefCmd)
	rootCmd.AddCommand(
		showCmd,
		setCmd,
		resetCmd,
		validateCmd,
		repairCmd,
		usageCmd,
		keysCmd,
		evictCmd,
		themeCmd,
		followCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
