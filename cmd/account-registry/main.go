package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	registryconfig "github.com/quantumauth-io/account-registry/cmd/account-registry/config"
	registryhttp "github.com/quantumauth-io/account-registry/internal/http"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/store/sqlite"
	"github.com/quantumauth-io/account-registry/internal/wallet"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := registryconfig.Load()
	if err != nil {
		log.Fatal("failed to parse config", "error", err)
	}

	// `account-registry token [subject]` prints an admin bearer token.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		subject := "admin"
		if len(os.Args) > 2 {
			subject = os.Args[2]
		}
		if err := printAdminToken(cfg, subject); err != nil {
			log.Fatal("failed to create admin token", "error", err)
		}
		return
	}

	log.Info("account-registry",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("account-registry stopped", "error", err)
		os.Exit(1)
	}
}

func printAdminToken(cfg *registryconfig.Config, subject string) error {
	secret, err := cfg.AdminSecret()
	if err != nil {
		return err
	}
	token, err := registryhttp.GenerateAdminToken(secret, subject, cfg.Server.AdminTokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context, cfg *registryconfig.Config) error {
	secret, err := cfg.AdminSecret()
	if err != nil {
		return err
	}
	alloc, err := cfg.GenesisAlloc()
	if err != nil {
		return err
	}

	ks, err := wallet.NewStore(cfg.Keystore.Path)
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	password, err := keystorePassword(cfg.Keystore.PasswordEnv)
	if err != nil {
		return err
	}
	w, err := ks.Ensure(password)
	zeroBytes(password)
	if err != nil {
		return fmt.Errorf("unlock keystore: %w", err)
	}
	log.Info("keystore unlocked", "path", ks.Path, "signer", w.Address().Hex())

	db, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("storage close failed", "error", err)
		}
	}()

	n, err := node.New(ctx, node.Config{
		ChainID:          cfg.ChainID(),
		Alloc:            alloc,
		RegistryIndex:    cfg.RegistryIndex(),
		AuthorizationTTL: cfg.Registry.AuthorizationTTL,
		Signer:           w,
		Storage:          db,
	})
	if err != nil {
		return fmt.Errorf("bootstrap node: %w", err)
	}
	n.Start(ctx)
	defer n.Stop()

	handler := registryhttp.NewRouter(registryhttp.NewHandler(n), registryhttp.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AdminSecret:    secret,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}
	return nil
}
