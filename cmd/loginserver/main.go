package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/airmash-refugees/airmash-services/internal/ledger"
	"github.com/airmash-refugees/airmash-services/internal/login"
	"github.com/airmash-refugees/airmash-services/internal/provider"
	"github.com/airmash-refugees/airmash-services/internal/secrets"
	"github.com/airmash-refugees/airmash-services/internal/token"
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
		Use:     "loginserver",
		Short:   "Federated login service minting Ed25519 capability tokens for game and settings backends",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":4101", "HTTP listen address")
	rootCmd.Flags().String("base_url", "", "Externally visible base URL of this service")
	rootCmd.Flags().String("home_url", "https://airmash.online", "Redirect target for unmatched routes")
	rootCmd.Flags().StringSlice("permitted_origins", []string{}, "Origins allowed to receive login results")
	rootCmd.Flags().String("secrets_file", "", "Path to the JSON secrets file (provider secrets and signing keypair)")
	rootCmd.Flags().String("database_url", "", "Database URL for the identity ledger (postgres:// or sqlite://; leave empty for in-memory)")
	rootCmd.Flags().Duration("session_ttl", 15*time.Minute, "Login session lifetime")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("base_url", rootCmd.Flags().Lookup("base_url"))
	_ = viper.BindPFlag("home_url", rootCmd.Flags().Lookup("home_url"))
	_ = viper.BindPFlag("permitted_origins", rootCmd.Flags().Lookup("permitted_origins"))
	_ = viper.BindPFlag("secrets_file", rootCmd.Flags().Lookup("secrets_file"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("session_ttl", rootCmd.Flags().Lookup("session_ttl"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	sessionCookieName = "login_session"

	configCodeMissingBaseURL          = "config.missing_base_url"
	configCodeMissingOrigins          = "config.missing_permitted_origins"
	configCodeMissingSecretsFile      = "config.missing_secrets_file"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// loginServerConfig gathers everything runServer needs beyond viper scalars:
// the validated flag values plus the loaded secrets payload.
type loginServerConfig struct {
	server      login.ServerConfig
	secretsFile secrets.File
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := loadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadServerConfig() (loginServerConfig, error) {
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		return loginServerConfig{}, configError(configCodeMissingBaseURL, "base_url must be provided")
	}

	permittedOrigins := viper.GetStringSlice("permitted_origins")
	if len(permittedOrigins) == 0 {
		return loginServerConfig{}, configError(configCodeMissingOrigins, "permitted_origins must be provided")
	}

	secretsPath := viper.GetString("secrets_file")
	if secretsPath == "" {
		return loginServerConfig{}, configError(configCodeMissingSecretsFile, "secrets_file must be provided")
	}
	secretsFile, secretsErr := secrets.Load(secretsPath)
	if secretsErr != nil {
		return loginServerConfig{}, secretsErr
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return loginServerConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	return loginServerConfig{
		server: login.ServerConfig{
			BaseURL:           baseURL,
			HomeURL:           viper.GetString("home_url"),
			PermittedOrigins:  permittedOrigins,
			SessionCookieName: sessionCookieName,
			SessionTTL:        sessionTTL,
			PublicKey:         secretsFile.Ed25519SigningKey.Public,
		},
		secretsFile: secretsFile,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(loginServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")

	privateKey, keyErr := token.ParsePrivateKey(serverConfig.secretsFile.Ed25519SigningKey.Private)
	if keyErr != nil {
		return keyErr
	}
	signer, signerErr := token.NewSigner(privateKey)
	if signerErr != nil {
		return signerErr
	}

	var identityLedger ledger.Ledger
	if databaseURL != "" {
		persistentLedger, ledgerErr := ledger.NewDatabaseLedger(context.Background(), databaseURL)
		if ledgerErr != nil {
			return ledgerErr
		}
		identityLedger = persistentLedger
		logger.Info("using persistent identity ledger", zap.String("driver", persistentLedger.Driver()))
	} else {
		identityLedger = ledger.NewMemoryLedger()
		logger.Info("using in-memory identity ledger")
	}

	clientSecrets, consumerSecrets := providerSecretTables(serverConfig.secretsFile)
	registry := provider.NewRegistry(provider.Definitions(), clientSecrets, consumerSecrets)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	orchestrator := login.NewOrchestrator(
		serverConfig.server,
		registry,
		login.NewCacheSessionStore(serverConfig.server.SessionTTL),
		identityLedger,
		signer,
		logger,
		login.NewCounterMetrics(),
	)
	login.MountLoginRoutes(router, orchestrator)

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

// providerSecretTables converts the secrets file's string-keyed provider map
// into the id-keyed tables the registry consumes. Unparsable keys are skipped;
// the corresponding provider simply keeps its descriptor defaults.
func providerSecretTables(secretsFile secrets.File) (map[int]string, map[int]string) {
	clientSecrets := make(map[int]string)
	consumerSecrets := make(map[int]string)
	for key, providerSecrets := range secretsFile.IdentityProviders {
		providerID, parseErr := strconv.Atoi(key)
		if parseErr != nil {
			continue
		}
		if providerSecrets.ClientSecret != "" {
			clientSecrets[providerID] = providerSecrets.ClientSecret
		}
		if providerSecrets.ConsumerSecret != "" {
			consumerSecrets[providerID] = providerSecrets.ConsumerSecret
		}
	}
	return clientSecrets, consumerSecrets
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
