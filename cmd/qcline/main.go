package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/qcline/qcline/pkg/cmd"
	"github.com/qcline/qcline/pkg/decoder"
	"github.com/qcline/qcline/pkg/engine"
	"github.com/qcline/qcline/pkg/eventbus"
	"github.com/qcline/qcline/pkg/imagestore"
	"github.com/qcline/qcline/pkg/log"
	"github.com/qcline/qcline/pkg/registry"
	"github.com/qcline/qcline/pkg/token"
)

const defaultPort = 9080

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "qcline",
		Usage:                 "Run the quality control workflow API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres:// or memory://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Optional Redis URL for continuation token storage",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "photo-dir",
				Usage:   "Directory for stored step photos",
				Value:   "./photos",
				Sources: cli.EnvVars("PHOTO_DIR"),
			},
			&cli.DurationFlag{
				Name:    "token-ttl",
				Usage:   "Continuation token lifetime",
				Value:   token.DefaultTTL,
				Sources: cli.EnvVars("TOKEN_TTL"),
			},
			&cli.DurationFlag{
				Name:    "token-reap-interval",
				Usage:   "How often expired continuation tokens are reaped",
				Value:   token.DefaultReapInterval,
				Sources: cli.EnvVars("TOKEN_REAP_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing qcline API")

			reg, err := registry.New()
			if err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			tokenRepo, err := cmd.NewTokenRepository(ctx, logger, store, command.String("redis-url"))
			if err != nil {
				return err
			}

			tokens := token.NewService(tokenRepo, logger,
				token.WithTTL(command.Duration("token-ttl")),
				token.WithReapInterval(command.Duration("token-reap-interval")),
			)

			reaperCtx, cancelReaper := context.WithCancel(ctx)
			defer cancelReaper()

			go tokens.StartReaper(reaperCtx)

			bus := eventbus.NewGoChannel(logger)
			defer func() {
				err := bus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			images, err := imagestore.NewStore(command.String("photo-dir"), logger)
			if err != nil {
				return err
			}

			dec := decoder.New(decoder.NewQRDetector(), logger)

			eng := engine.New(reg, store, tokens, logger, engine.WithEventBus(bus))

			api := NewAPI(logger, eng, dec, images, store, reg)

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("qcline exited with error", "error", err)
		os.Exit(1)
	}
}
