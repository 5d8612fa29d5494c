package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/verdantworks/fieldsync/internal/auth"
	"github.com/verdantworks/fieldsync/internal/config"
	"github.com/verdantworks/fieldsync/internal/database"
	"github.com/verdantworks/fieldsync/internal/logging"
	"github.com/verdantworks/fieldsync/internal/notify"
	"github.com/verdantworks/fieldsync/internal/registry"
	"github.com/verdantworks/fieldsync/internal/server"
	syncsvc "github.com/verdantworks/fieldsync/internal/sync"
	"github.com/verdantworks/fieldsync/internal/tenant"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fieldsync-api",
		Short: "Fieldsync offline synchronization backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().Int("notify-quota", defaults.GetInt("notify.quota"), "Notifications allowed per tenant per window")
	cmd.PersistentFlags().Int("notify-window-seconds", defaults.GetInt("notify.window_seconds"), "Notification throttle window in seconds")
	cmd.PersistentFlags().Int("tombstone-retention-days", defaults.GetInt("sync.tombstone_retention_days"), "Days before tombstones are purged (0 disables)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "notify.quota", "notify-quota")
	bindFlag(cmd, "notify.window_seconds", "notify-window-seconds")
	bindFlag(cmd, "sync.tombstone_retention_days", "tombstone-retention-days")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "fieldsync-auth",
		Audience:      "fieldsync-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	tenantService, err := tenant.NewService(tenant.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	syncService, err := syncsvc.NewService(syncsvc.ServiceConfig{
		Database:   db,
		Registry:   registry.New(),
		Clock:      time.Now,
		IDProvider: syncsvc.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if appConfig.TombstoneRetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -appConfig.TombstoneRetentionDays)
		if _, err := syncService.PurgeTombstones(ctx, cutoff); err != nil {
			logger.Warn("tombstone purge failed", zap.Error(err))
		}
	}

	throttle := notify.NewThrottle(appConfig.NotifyQuota, appConfig.NotifyWindow)
	notifier := notify.NewConflictNotifier(throttle, &notify.LogDispatcher{Logger: logger}, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		TenantService: tenantService,
		SyncService:   syncService,
		Notifier:      notifier,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
