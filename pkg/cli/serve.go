package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/WaffleHacks/autodeploy/pkg/cli/config"
	controller "github.com/WaffleHacks/autodeploy/pkg/controller/http"
	"github.com/WaffleHacks/autodeploy/pkg/infra/git"
	"github.com/WaffleHacks/autodeploy/pkg/infra/manifest"
	"github.com/WaffleHacks/autodeploy/pkg/infra/queue"
	"github.com/WaffleHacks/autodeploy/pkg/usecase"
	"github.com/WaffleHacks/autodeploy/pkg/utils/keylock"
)

func cmdServe() *cli.Command {
	var (
		serverCfg    config.Server
		githubCfg    config.GitHub
		deployCfg    config.Deploy
		sentryCfg    config.Sentry
		slackCfg     config.Slack
		firestoreCfg config.Firestore
	)

	var flags []cli.Flag
	flags = append(flags, serverCfg.Flags()...)
	flags = append(flags, githubCfg.Flags()...)
	flags = append(flags, deployCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, firestoreCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the webhook server and deployment workers",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if err := githubCfg.Validate(); err != nil {
				return err
			}
			if err := deployCfg.Validate(); err != nil {
				return err
			}

			logger.Info("Starting autodeploy",
				slog.String("version", c.Root().Version),
				slog.Any("server", serverCfg),
				slog.Any("github", githubCfg),
				slog.Any("deploy", deployCfg),
			)

			flush, err := sentryCfg.Configure()
			if err != nil {
				return err
			}
			defer flush()

			rules, err := config.LoadPolicyRules(deployCfg.RulesPath, c.IsSet("config"))
			if err != nil {
				return err
			}
			logger.Info("Loaded policy rules", slog.Int("rules", len(rules)), slog.String("path", deployCfg.RulesPath))

			if err := os.MkdirAll(deployCfg.Repositories, 0o755); err != nil {
				return goerr.Wrap(err, "failed to create repositories directory", goerr.V("path", deployCfg.Repositories))
			}

			jobs, closeJobs, err := firestoreCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closeJobs()

			jobQueue := queue.New()
			locks := keylock.New()

			workerOpts := []usecase.WorkerOption{usecase.WithWorkers(int(deployCfg.Workers))}
			if notifier := slackCfg.Configure(); notifier != nil {
				workerOpts = append(workerOpts, usecase.WithNotifier(notifier))
			}
			pool := usecase.NewWorkerPool(jobQueue, usecase.NewDeploy(manifest.New()), jobs, locks, workerOpts...)

			webhookUC := usecase.NewWebhook(git.New(), jobQueue, jobs, locks,
				usecase.WithPolicyRules(rules),
				usecase.WithRepositoryRoot(deployCfg.Repositories),
			)

			server, err := controller.NewServer(
				ctx,
				webhookUC,
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(githubCfg.WebhookSecret),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// workers outlive the request context so queued jobs still run during shutdown
			poolDone := make(chan struct{})
			go func() {
				defer close(poolDone)
				pool.Run(context.WithoutCancel(ctx))
			}()

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			case err := <-serverErr:
				runErr = goerr.Wrap(err, "HTTP server failed")
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				runErr = errors.Join(runErr, goerr.Wrap(err, "failed to shutdown server gracefully"))
			}

			// no more jobs can arrive once the server is down
			jobQueue.Close()
			logger.Info("Waiting for workers to finish", slog.Int("queued", jobQueue.Len()))
			<-poolDone

			logger.Info("Server shutdown complete")
			return runErr
		},
	}
}
