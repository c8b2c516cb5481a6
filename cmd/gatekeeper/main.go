package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/gatekeeper/internal/app"
	"github.com/dropDatabas3/gatekeeper/internal/config"
	httpserver "github.com/dropDatabas3/gatekeeper/internal/http"
	apikeysctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/apikeys"
	healthctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/mfa"
	sessionsctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/sessions"
	tokensctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/tokens"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	"github.com/dropDatabas3/gatekeeper/internal/http/router"
	"github.com/dropDatabas3/gatekeeper/internal/metrics"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

func main() {
	var (
		envFile    string
		configPath string
	)

	root := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Servidor de autenticación: JWT, sesiones, MFA, API keys",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				_ = godotenv.Load(envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "ruta a .env (se ignora si no existe)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "ruta a config.yaml (vacío = defaults + env)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Arranca el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera claves para el entorno (signing key Ed25519 y master key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			signing, err := token.GenerateSigningKey()
			if err != nil {
				return err
			}
			master, err := secretbox.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Printf("GATEKEEPER_SIGNING_KEY=%s\n", signing)
			fmt.Printf("GATEKEEPER_MASTER_KEY=%s\n", master)
			return nil
		},
	}

	root.AddCommand(serveCmd, keygenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		ServiceName: "gatekeeper",
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := metrics.RegisterAuth(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	gateway, err := mw.NewGateway(mw.GatewayConfig{
		Tokens:  c.Tokens,
		Keys:    c.Keys,
		Limiter: c.Limiter,
		Auditor: c.Auditor,
	})
	if err != nil {
		return err
	}

	handler := router.New(router.Deps{
		Gateway:  gateway,
		Throttle: mw.NewThrottle(cfg.Rate.HTTPRequestsPerSecond, cfg.Rate.HTTPBurst),
		Health:   healthctrl.NewController(c.Store),
		MFA:      mfactrl.NewControllers(c.MFA, c.Sessions),
		Sessions: sessionsctrl.NewController(c.Sessions),
		APIKeys:  apikeysctrl.NewController(c.Keys, c.Auditor),
		Tokens:   tokensctrl.NewController(c.Tokens),
	})

	srv := httpserver.NewServer(cfg.Server.Addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}
