package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"attest/internal/audit"
	"attest/internal/content"
	"attest/internal/entitlement"
	"attest/internal/index"
	"attest/internal/index/reconcile"
	"attest/internal/issuance"
	issuancemetrics "attest/internal/issuance/metrics"
	"attest/internal/ledger"
	"attest/internal/platform/config"
	"attest/internal/platform/database"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	"attest/internal/revocation"
	revocationmetrics "attest/internal/revocation/metrics"
	"attest/internal/sharing"
	sharingmetrics "attest/internal/sharing/metrics"
	httptransport "attest/internal/transport/http"
	"attest/internal/verification"
	verificationmetrics "attest/internal/verification/metrics"
	"attest/internal/verification/quota"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing attest",
		"addr", cfg.Addr,
		"free_verify_limit", cfg.FreeVerifyLimit,
		"public_verification", cfg.PublicVerification,
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	// The ledger and content store are external collaborators; the in-process
	// implementations stand in for them. Index, quota, and audit storage move
	// to Postgres when a database URL is configured.
	credentialLedger := ledger.NewInMemory()
	contentStore := content.NewInMemoryStore(cfg.ContentBaseURL)
	oracle := entitlement.NewStaticOracle()

	var (
		indexStore index.Store
		quotaStore quota.Store
		auditStore audit.Store
	)
	if pool != nil {
		log.Info("using postgres storage")
		indexStore = index.NewPostgres(pool.DB())
		quotaStore = quota.NewPostgres(pool.DB())
		auditStore = audit.NewPostgres(pool.DB())
	} else {
		log.Info("no database configured, using in-memory storage")
		indexStore = index.NewInMemoryStore()
		quotaStore = quota.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	}

	publisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)

	issuer, err := issuance.New(credentialLedger, contentStore, indexStore, publisher,
		issuance.WithLogger(log),
		issuance.WithMetrics(issuancemetrics.New()),
	)
	if err != nil {
		log.Error("failed to build issuance coordinator", "error", err)
		os.Exit(1)
	}

	gateway, err := verification.New(credentialLedger, indexStore, quotaStore, oracle, publisher,
		verification.Config{
			FreeVerifyLimit:    cfg.FreeVerifyLimit,
			PublicVerification: cfg.PublicVerification,
		},
		verification.WithLogger(log),
		verification.WithMetrics(verificationmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build verification gateway", "error", err)
		os.Exit(1)
	}

	revoker, err := revocation.New(credentialLedger, indexStore, publisher,
		revocation.WithLogger(log),
		revocation.WithMetrics(revocationmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build revocation service", "error", err)
		os.Exit(1)
	}

	sharer, err := sharing.New(cfg.ShareSigningKey, credentialLedger, publisher,
		sharing.WithDefaultTTL(cfg.ShareDefaultTTL),
		sharing.WithLogger(log),
		sharing.WithMetrics(sharingmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build sharing service", "error", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.New(credentialLedger, indexStore,
		reconcile.WithInterval(cfg.ReconcileInterval),
		reconcile.WithMetrics(reconcile.NewMetrics()),
		reconcile.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to build index reconciler", "error", err)
		os.Exit(1)
	}
	reconciler.Start()

	var pinger httptransport.Pinger
	if pool != nil {
		pinger = pool
	}
	handler := httptransport.NewHandler(issuer, gateway, revoker, sharer, publisher, contentStore, pinger, log)
	router := httptransport.NewRouter(handler, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := reconciler.Stop(ctx); err != nil {
		log.Error("reconciler shutdown failed", "error", err)
	}
	publisher.Close()
	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error("failed to close database pool", "error", err)
		}
	}

	log.Info("server stopped")
}
