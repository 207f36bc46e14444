// Package cmd provides the command-line interface for rollbook.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"rollbook/internal/application/common/logging"
	"rollbook/internal/application/common/slogger"
	"rollbook/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "rollbook",
	Short:        "Training attendance archival engine",
	SilenceUsage: true,
	Long: `Rollbook moves attendee records of finished training cycles from the live
store into the archive store and resets the course cycle counters.

The system supports:
- Archiving a single course or every course in one transaction
- Batched, idempotent upserts into the archive store
- Verification of archived counts before live records are deleted
- Archive requests and completion events over NATS`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := newViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	// Flags bound on the global viper take precedence over the file.
	for _, key := range []string{"log.level", "log.format"} {
		if viper.IsSet(key) {
			v.Set(key, viper.Get(key))
		}
	}

	cfg = config.New(v)

	if err := slogger.Configure(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
	}
}

// newViper returns a viper instance with defaults and ROLLBOOK_ environment
// overrides applied.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ROLLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rollbook")
	v.SetDefault("database.name", "rollbook")
	v.SetDefault("database.schema", "rollbook")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	// NATS defaults
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream", "ARCHIVE")

	// Archive defaults
	v.SetDefault("archive.batch_size", 5000)
	v.SetDefault("archive.default_cycle_length_days", 30)
	v.SetDefault("archive.baseline_elapsed_days", 0)
	v.SetDefault("archive.max_retries", 2)
	v.SetDefault("archive.retry_initial_delay", "100ms")
	v.SetDefault("archive.retry_max_delay", "2s")
	v.SetDefault("archive.fallback_course_name", "course not registered")
	v.SetDefault("archive.isolation", "repeatable_read")

	// Worker defaults
	v.SetDefault("worker.subject", "archive.requests")
	v.SetDefault("worker.queue_group", "rollbook-workers")
	v.SetDefault("worker.job_timeout", "30m")
	v.SetDefault("worker.drain_timeout", "30s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.service_name", "rollbook")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
