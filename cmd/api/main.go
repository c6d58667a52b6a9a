// Package main is the entry point for the consent ledger API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixbridge/genconsent/internal/access"
	"github.com/helixbridge/genconsent/internal/api"
	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/auth"
	"github.com/helixbridge/genconsent/internal/config"
	"github.com/helixbridge/genconsent/internal/consent"
	"github.com/helixbridge/genconsent/internal/content"
	"github.com/helixbridge/genconsent/internal/governance"
	"github.com/helixbridge/genconsent/internal/health"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/member"
	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/record"
	"github.com/helixbridge/genconsent/internal/sequence"
	"github.com/helixbridge/genconsent/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Genomic Consent Ledger API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "genconsent-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Metrics live on a private registry so only ours are exported.
	registry := prometheus.NewRegistry()
	ledgerMetrics := ledger.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	if err := ledgerMetrics.Register(registry); err != nil {
		logger.Error("failed to register ledger metrics", "error", err)
		os.Exit(1)
	}
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	ledgerClient, err := ledger.NewHTTPClient(ledger.HTTPClientConfig{
		BaseURL:     cfg.LedgerRPCURL,
		CallTimeout: time.Duration(cfg.LedgerCallTimeoutMS) * time.Millisecond,
		Metrics:     ledgerMetrics,
	})
	if err != nil {
		logger.Error("failed to create ledger client", "error", err)
		os.Exit(1)
	}
	probe := ledger.NewCachedProbe(ledgerClient, time.Duration(cfg.LedgerProbeTTLMS)*time.Millisecond)

	contentStore, err := content.NewStore(content.StoreConfig{
		BucketName:       cfg.ContentBucketName,
		AccessKeyID:      cfg.ContentAccessKeyID,
		SecretAccessKey:  cfg.ContentSecretAccessKey,
		Endpoint:         cfg.ContentEndpoint,
		URLExpiryMinutes: cfg.ContentURLExpiryMinutes,
	})
	if err != nil {
		logger.Error("failed to create content store", "error", err)
		os.Exit(1)
	}

	// Repositories and counters over the Postgres mirror.
	counter := sequence.NewPostgresCounter(db)
	memberRepo := member.NewPostgresRepository(db)
	proposalRepo := governance.NewPostgresRepository(db)
	consentRepo := consent.NewPostgresRepository(db)
	accessRepo := access.NewPostgresRepository(db)
	recordRepo := record.NewPostgresRepository(db)
	auditRepo := audit.NewPostgresRepository(db)
	trail := audit.NewTrail(auditRepo, counter)

	engine := governance.NewEngine(proposalRepo, memberRepo, probe, trail, ledgerMetrics, logger)
	consents := consent.NewManager(consentRepo, probe, trail, counter, ledgerMetrics, logger)
	workflow := access.NewWorkflow(accessRepo, consents, trail, counter, logger)
	records := record.NewService(recordRepo, memberRepo, contentStore, probe, trail, counter, ledgerMetrics, logger)

	// Fold ledger-emitted facts into the mirror so resolutions settled by
	// other participants become visible here.
	factHandler := func(ctx context.Context, fact *ledger.Fact) error {
		switch fact.Kind {
		case ledger.FactConsentRevoked:
			payload, err := ledger.DecodeConsentRevoked(fact)
			if err != nil {
				logger.Warn("dropping malformed consent.revoked fact", "error", err)
				return nil
			}
			return consents.RevokeFromFact(ctx, payload.Index, fact.Token)
		case ledger.FactProposalResolved:
			payload, err := ledger.DecodeProposalResolved(fact)
			if err != nil {
				logger.Warn("dropping malformed proposal.resolved fact", "error", err)
				return nil
			}
			status := governance.StatusRejected
			if payload.Status == string(governance.StatusApproved) {
				status = governance.StatusApproved
			}
			return engine.ResolveFromFact(ctx, payload.ProposalID, status, fact.Token)
		default:
			// Unknown kinds are skipped; the stream is shared.
			return nil
		}
	}
	subscriber, err := ledger.NewSubscriber(ledger.StreamConfig{URL: cfg.LedgerStreamURL}, factHandler, logger)
	if err != nil {
		logger.Error("failed to create fact stream subscriber", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	router := api.NewRouter(api.RouterConfig{
		Governance: api.NewGovernanceHandlers(engine, time.Duration(cfg.VotingPeriodHours)*time.Hour),
		Consents:   api.NewConsentHandlers(consents),
		Access:     api.NewAccessHandlers(workflow),
		Records:    api.NewRecordHandlers(records),
		Audit:      api.NewAuditHandlers(auditRepo),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:     health.NewDBChecker(db),
			LedgerChecker: health.NewLedgerChecker(probe),
		}),
		Authenticate: middleware.Authenticate(jwtService),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", router)

	// Middleware: RequestID -> Logging -> HTTPMetrics.
	handler := middleware.RequestID(
		middleware.Logging(logger)(
			middleware.HTTPMetrics(httpMetrics)(mux)))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	streamCtx, stopStream := context.WithCancel(context.Background())
	go func() {
		if err := subscriber.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("fact stream terminated", "error", err)
		}
	}()

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopStream()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
