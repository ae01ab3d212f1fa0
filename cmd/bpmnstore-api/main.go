package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/config"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/database"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/definitions"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/processmodels"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type application struct {
	viper   *viper.Viper
	cfgFile string
}

func newRootCommand() *cobra.Command {
	app := &application{viper: config.NewViper()}
	rootCmd := &cobra.Command{
		Use:          "bpmnstore-api",
		Short:        "Versioned BPMN definition store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServer(cmd.Context())
		},
	}

	app.setupFlags(rootCmd)
	rootCmd.AddCommand(
		app.newPersistCommand(),
		app.newShowCommand(),
		app.newHistoryCommand(),
		app.newTokenCommand(),
	)
	return rootCmd
}

func (a *application) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	flags.Int("database-max-open-conns", defaults.GetInt("database.max_open_conns"), "Maximum open connections (0 = driver default)")
	flags.Int("slow-query-ms", defaults.GetInt("database.slow_query_ms"), "Slow SQL statement threshold in milliseconds")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Service token signing secret (enables auth on mutating routes)")
	flags.String("auth-issuer", defaults.GetString("auth.issuer"), "Service token issuer")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Service token TTL in minutes")

	a.bindFlag(cmd, "http.address", "http-address")
	a.bindFlag(cmd, "database.driver", "database-driver")
	a.bindFlag(cmd, "database.dsn", "database-dsn")
	a.bindFlag(cmd, "database.max_open_conns", "database-max-open-conns")
	a.bindFlag(cmd, "database.slow_query_ms", "slow-query-ms")
	a.bindFlag(cmd, "log.level", "log-level")
	a.bindFlag(cmd, "auth.signing_secret", "signing-secret")
	a.bindFlag(cmd, "auth.issuer", "auth-issuer")
	a.bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
}

func (a *application) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (a *application) initConfig() error {
	if a.cfgFile == "" {
		return nil
	}
	a.viper.SetConfigFile(a.cfgFile)
	return a.viper.ReadInConfig()
}

// storeRuntime holds the stores opened for one command invocation.
type storeRuntime struct {
	config        config.AppConfig
	logger        *zap.Logger
	manager       *database.Manager
	definitions   *definitions.Service
	processModels *processmodels.Service
}

func (a *application) openRuntime(ctx context.Context) (*storeRuntime, error) {
	appConfig, err := config.Load(a.viper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	dbConfig := appConfig.DatabaseConfig()
	dbConfig.Logger = logging.NewGormLogger(logger, appConfig.SlowQueryThreshold)
	manager := database.NewManager(logger)

	definitionService, err := definitions.NewService(definitions.ServiceConfig{
		Connections: manager,
		Database:    dbConfig,
		Clock:       time.Now,
		IDProvider:  database.NewUUIDProvider(),
		Logger:      logger.Named("definitions"),
	})
	if err != nil {
		return nil, err
	}
	modelService, err := processmodels.NewService(processmodels.ServiceConfig{
		Connections: manager,
		Database:    dbConfig,
		IDProvider:  database.NewUUIDProvider(),
		Logger:      logger.Named("processmodels"),
	})
	if err != nil {
		return nil, err
	}

	rt := &storeRuntime{
		config:        appConfig,
		logger:        logger,
		manager:       manager,
		definitions:   definitionService,
		processModels: modelService,
	}
	if err := definitionService.Initialize(ctx); err != nil {
		rt.close()
		return nil, err
	}
	if err := modelService.Initialize(ctx); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *storeRuntime) close() {
	if err := rt.definitions.Dispose(); err != nil {
		rt.logger.Warn("failed to dispose definitions store", zap.Error(err))
	}
	if err := rt.processModels.Dispose(); err != nil {
		rt.logger.Warn("failed to dispose process model store", zap.Error(err))
	}
	if err := rt.manager.Close(); err != nil {
		rt.logger.Warn("failed to close database connections", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

func (a *application) runServer(ctx context.Context) error {
	rt, err := a.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	deps := server.Dependencies{
		Definitions:   rt.definitions,
		ProcessModels: rt.processModels,
		Realtime:      server.NewRevisionDispatcher(),
		Logger:        rt.logger,
	}
	if rt.config.AuthEnabled() {
		validator, err := auth.NewTokenValidator(auth.TokenValidatorConfig{
			SigningSecret: []byte(rt.config.AuthSigningSecret),
			Issuer:        rt.config.AuthIssuer,
		})
		if err != nil {
			return err
		}
		deps.Tokens = validator
	} else {
		rt.logger.Warn("auth.signing_secret not set; mutating routes are unauthenticated")
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		rt.logger.Info("server starting",
			zap.String("address", rt.config.HTTPAddress),
			zap.String("database_driver", string(rt.config.DatabaseDriver)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
