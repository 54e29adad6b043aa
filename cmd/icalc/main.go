// Package main は在庫総額ジョブを操作する CLI のエントリーポイントです。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/inventory-calculator/internal/api"
	"github.com/yourusername/inventory-calculator/internal/app"
	"github.com/yourusername/inventory-calculator/internal/config"
	"github.com/yourusername/inventory-calculator/internal/event"
	"github.com/yourusername/inventory-calculator/internal/logging"
)

// openFunc はコマンドが使う JobService と、その後始末を返します。
type openFunc func(ctx context.Context) (api.JobService, func(context.Context) error, error)

// workerFunc は終了シグナルまで計算ワーカーを動かします。
type workerFunc func(ctx context.Context) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openService, runWorkers).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open openFunc, work workerFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "icalc",
		Short:        "Submit inventory files and compute their total value",
		SilenceUsage: true,
	}

	withService := func(run func(cmd *cobra.Command, svc api.JobService, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeFn(context.WithoutCancel(cmd.Context())); err == nil {
					err = closeErr
				}
			}()
			return run(cmd, svc, args)
		}
	}

	submitCmd := &cobra.Command{
		Use:   "submit file-url",
		Short: "Copy an inventory file into storage and create a compute job",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc api.JobService, args []string) error {
			result, err := svc.Submit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status job-id",
		Short: "Show the status and total value of a job",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc api.JobService, args []string) error {
			result, err := svc.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		}),
	}

	computeCmd := &cobra.Command{
		Use:   "compute job-id",
		Short: "Compute the total value of a job synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc api.JobService, args []string) error {
			if err := svc.Compute(cmd.Context(), args[0]); err != nil {
				return err
			}
			result, err := svc.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		}),
	}

	invokeCmd := &cobra.Command{
		Use:   "invoke submit|compute|check-status event-json",
		Short: "Run an operation with a JSON event",
		Args:  cobra.ExactArgs(2),
		RunE: withService(func(cmd *cobra.Command, svc api.JobService, args []string) error {
			return invoke(cmd.Context(), cmd.OutOrStdout(), svc, args[0], []byte(args[1]))
		}),
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run compute workers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return work(cmd.Context())
		},
	}

	rootCmd.AddCommand(submitCmd, statusCmd, computeCmd, invokeCmd, workerCmd)
	return rootCmd
}

func invoke(ctx context.Context, out io.Writer, svc api.JobService, operation string, payload []byte) error {
	switch operation {
	case "submit":
		ev, err := event.DecodeSubmit(payload)
		if err != nil {
			return err
		}
		result, err := svc.Submit(ctx, ev.FileURL)
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	case "compute":
		ev, err := event.DecodeJob(payload)
		if err != nil {
			return err
		}
		return svc.Compute(ctx, ev.JobID)
	case "check-status":
		ev, err := event.DecodeJob(payload)
		if err != nil {
			return err
		}
		result, err := svc.CheckStatus(ctx, ev.JobID)
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	default:
		return fmt.Errorf("unknown operation %q: want submit, compute or check-status", operation)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setup(ctx context.Context) (*config.Config, *app.App, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, flush, err := logging.Install(cfg.GinMode, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		flush()
		return nil, nil, nil, nil, err
	}
	return cfg, application, logger, flush, nil
}

func openService(ctx context.Context) (api.JobService, func(context.Context) error, error) {
	cfg, application, _, flush, err := setup(ctx)
	if err != nil {
		return nil, nil, err
	}
	// local モードでは CLI プロセス自身が計算し、終了前に処理し終える
	if cfg.DispatchMode == config.DispatchLocal {
		if err := application.StartWorkers(); err != nil {
			_ = application.Close(ctx)
			flush()
			return nil, nil, err
		}
	}
	return application.Service, func(ctx context.Context) error {
		defer flush()
		return application.Close(ctx)
	}, nil
}

func runWorkers(ctx context.Context) error {
	_, application, logger, flush, err := setup(ctx)
	if err != nil {
		return err
	}
	defer flush()
	defer application.Close(context.WithoutCancel(ctx))

	logger.Info("starting compute workers")
	return application.RunWorkers()
}
