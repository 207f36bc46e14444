package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"rollbook/internal/application/dto"
	"rollbook/internal/port/inbound"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats for migration results.
const (
	outputJSON = "json"
	outputYAML = "yaml"
	outputText = "text"
)

type archiveOptions struct {
	batchSize int
	output    string
}

// newArchiveCmd creates and returns the archive command.
func newArchiveCmd() *cobra.Command {
	opts := &archiveOptions{}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive attendee records",
		Long: `Archive attendee records from the live store into the archive store.

Each migration runs in one transaction: records are copied in batches,
the archived count is verified against the selection, live records are
deleted and the course cycle counters are reset.`,
	}

	cmd.PersistentFlags().IntVar(&opts.batchSize, "batch-size", 0, "Records per bulk upsert (default: archive.batch_size)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "Output format (json, yaml, text)")

	cmd.AddCommand(&cobra.Command{
		Use:   "course <course-id>",
		Short: "Archive every record of one course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, opts, func(ctx context.Context, svc inbound.ArchiveService) (dto.MigrationResult, error) {
				return svc.MigrateByCourse(ctx, args[0], opts.batchSize)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Archive every record of every course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchive(cmd, opts, func(ctx context.Context, svc inbound.ArchiveService) (dto.MigrationResult, error) {
				return svc.MigrateAll(ctx, opts.batchSize)
			})
		},
	})

	return cmd
}

type migrateFunc func(ctx context.Context, svc inbound.ArchiveService) (dto.MigrationResult, error)

func runArchive(cmd *cobra.Command, opts *archiveOptions, migrate migrateFunc) error {
	if err := validateOutput(opts.output); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	result, migrateErr := migrate(ctx, rt.service)
	if err := renderResult(cmd.OutOrStdout(), result, opts.output); err != nil {
		return err
	}
	return migrateErr
}

func validateOutput(output string) error {
	switch output {
	case outputJSON, outputYAML, outputText:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use json, yaml or text)", output)
	}
}

// renderResult writes the migration result in the requested format.
func renderResult(w io.Writer, result dto.MigrationResult, output string) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		status := "OK"
		if !result.OK {
			status = "FAILED"
		}
		_, err := fmt.Fprintf(w, "%s [%s] %s\nprocessed: %d  batches: %d  duration: %s\n",
			status, result.Scope, result.Message, result.Processed, result.Batches, result.Duration)
		if err == nil && result.ErrorCode != "" {
			_, err = fmt.Fprintf(w, "error code: %s\n", result.ErrorCode)
		}
		return err
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newArchiveCmd())
}
