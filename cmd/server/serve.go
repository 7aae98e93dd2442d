package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/store-rating/internal/config"
	"github.com/iliyamo/store-rating/internal/database"
	"github.com/iliyamo/store-rating/internal/queue"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/router"
)

var serveMigrate bool

// serveCmd runs the HTTP API until SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, log, settings, err := bootstrap()
		if err != nil {
			return err
		}
		db, err := database.Open(ctx, *settings)
		if err != nil {
			return err
		}
		defer db.Close()
		log.WithField("db", settings.Name).Info("connected to MySQL")

		if serveMigrate {
			// a separate pool: closing the migrator closes its db
			mdb, err := database.Open(ctx, *settings)
			if err != nil {
				return err
			}
			m, err := database.NewMigrator(mdb)
			if err != nil {
				_ = mdb.Close()
				return err
			}
			err = database.MigrateUp(m)
			_, _ = m.Close()
			if err != nil {
				return err
			}
			log.Info("migrations applied")
		}

		if cfg.SeedAdmin() {
			created, err := repository.NewUserRepo(db).EnsureAdmin(ctx,
				cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminAddress, cfg.BcryptCost)
			if err != nil {
				return err
			}
			if created {
				log.WithField("email", cfg.AdminEmail).Info("default admin created")
			}
		}

		rdb := config.NewRedisClient()
		if rdb == nil {
			log.Warn("redis unavailable; response cache and rate limiting disabled")
		} else {
			defer rdb.Close()
		}
		cacheCfg, err := config.LoadCacheConfig()
		if err != nil {
			return err
		}
		rateCfg, err := config.LoadRateLimitConfig()
		if err != nil {
			return err
		}

		var pub queue.Publisher = queue.NopPublisher{}
		if cfg.EventsEnabled {
			ap := queue.NewAMQPPublisher(cfg.RabbitMQURL, log)
			defer ap.Close()
			pub = ap

			consumer := &queue.Consumer{URL: cfg.RabbitMQURL, LogDir: cfg.EventLogDir, Log: log}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("rating consumer stopped")
				}
			}()
		}

		e := router.New(router.Deps{
			Cfg:       cfg,
			Log:       log,
			DB:        db,
			Redis:     rdb,
			CacheCfg:  cacheCfg,
			RateCfg:   rateCfg,
			Publisher: pub,
		})

		addr := ":" + cfg.Port
		errCh := make(chan error, 1)
		go func() {
			log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
}
