package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	inboundmessaging "rollbook/internal/adapter/inbound/messaging"
	"rollbook/internal/adapter/outbound/repository"
	"rollbook/internal/application/common/slogger"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the archive request worker",
		Long: `Start the worker that consumes archive requests from NATS.

The worker:
- Subscribes to the request subject in a queue group
- Runs one migration per request and replies with the result
- Publishes completion events to JetStream

Configuration is loaded from config files and environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

// runWorker starts the consumer and blocks until a shutdown signal arrives.
func runWorker(parent context.Context) error {
	cfg := GetConfig()
	if !cfg.NATS.Enabled() {
		return errors.New("nats.url is required to run the worker")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	health := repository.NewDatabaseHealthChecker(rt.pool)
	if !health.IsHealthy(ctx) {
		return errors.New("database is not reachable")
	}

	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("rollbook-worker"),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	consumer, err := inboundmessaging.NewArchiveRequestConsumer(inboundmessaging.ConsumerConfig{
		Subject:    cfg.Worker.Subject,
		QueueGroup: cfg.Worker.QueueGroup,
		JobTimeout: cfg.Worker.JobTimeout,
	}, inboundmessaging.ConnQueueSubscriber(conn), rt.service)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Worker.DrainTimeout)
		defer cancel()
		return consumer.Stop(stopCtx)
	})

	slogger.Info(ctx, "Worker started", slogger.Fields2(
		"subject", consumer.Subject(),
		"queue_group", consumer.QueueGroup(),
	))

	if err := g.Wait(); err != nil {
		return err
	}

	stopCtx := context.WithoutCancel(ctx)
	stats := consumer.GetStats()
	fields := slogger.Fields3(
		"received", stats.MessagesReceived,
		"processed", stats.MessagesProcessed,
		"failed", stats.MessagesFailed,
	)
	if pool := health.GetMetrics(stopCtx); pool != nil {
		fields["db_total_conns"] = pool.TotalConnections
		fields["db_idle_conns"] = pool.IdleConnections
		fields["db_ping"] = pool.ResponseTime.String()
	}
	slogger.Info(stopCtx, "Worker stopped", fields)
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}
