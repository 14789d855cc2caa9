package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/airmash-refugees/airmash-services/internal/settings"
	"github.com/airmash-refugees/airmash-services/pkg/tokenverifier"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "settingsserver",
		Short: "Per-player settings API for holders of settings-purpose capability tokens",
		RunE:  runServer,
	}

	rootCmd.Flags().String("listen_addr", ":4102", "HTTP listen address")
	rootCmd.Flags().String("key_url", "", "URL of the login service /key endpoint")
	rootCmd.Flags().String("public_key", "", "Base64 SPKI verification key; overrides key_url when set")
	rootCmd.Flags().String("database_url", "", "Database URL for settings (postgres:// or sqlite://; leave empty for in-memory)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Game origins allowed to call this API")
	rootCmd.Flags().Duration("token_max_age", 0, "Reject tokens older than this; zero disables the check")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("key_url", rootCmd.Flags().Lookup("key_url"))
	_ = viper.BindPFlag("public_key", rootCmd.Flags().Lookup("public_key"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("token_max_age", rootCmd.Flags().Lookup("token_max_age"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const configCodeMissingKeySource = "config.missing_key_source"

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	listenAddr := viper.GetString("listen_addr")
	keyURL := viper.GetString("key_url")
	publicKey := viper.GetString("public_key")
	databaseURL := viper.GetString("database_url")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	tokenMaxAge := viper.GetDuration("token_max_age")

	// Verification is impossible without the login service's public key, so
	// failure to obtain it is fatal at startup, never deferred to requests.
	var verifier *tokenverifier.Verifier
	switch {
	case publicKey != "":
		constructed, verifierErr := tokenverifier.New(tokenverifier.Config{PublicKey: publicKey, MaxAge: tokenMaxAge})
		if verifierErr != nil {
			return verifierErr
		}
		verifier = constructed
	case keyURL != "":
		commandContext := command.Context()
		if commandContext == nil {
			commandContext = context.Background()
		}
		fetchCtx, fetchCancel := context.WithTimeout(commandContext, 30*time.Second)
		defer fetchCancel()
		constructed, verifierErr := tokenverifier.NewFromKeyURL(fetchCtx, keyURL, tokenMaxAge)
		if verifierErr != nil {
			return verifierErr
		}
		verifier = constructed
		logger.Info("verification key fetched", zap.String("key_url", keyURL))
	default:
		return configError(configCodeMissingKeySource, "either public_key or key_url must be provided")
	}

	var store settings.Store
	if databaseURL != "" {
		persistentStore, storeErr := settings.NewDatabaseStore(context.Background(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		store = persistentStore
		logger.Info("using persistent settings store")
	} else {
		store = settings.NewMemoryStore()
		logger.Info("using in-memory settings store")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if len(corsAllowedOrigins) > 0 {
		corsMiddleware, corsErr := settings.GameOriginCORS(corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	settings.MountSettingsRoutes(router, settings.NewService(store, logger), verifier)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
