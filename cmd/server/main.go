package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ballotbox/internal/ballot"
	ballotService "ballotbox/internal/ballot/service"
	ballotStore "ballotbox/internal/ballot/store"
	"ballotbox/internal/election"
	electionService "ballotbox/internal/election/service"
	electionStore "ballotbox/internal/election/store"
	"ballotbox/internal/jwtauth"
	"ballotbox/internal/ledger"
	ledgerStore "ballotbox/internal/ledger/store"
	"ballotbox/internal/lockout"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/httpserver"
	"ballotbox/internal/platform/logger"
	"ballotbox/internal/platform/metrics"
	"ballotbox/internal/platform/postgres"
	"ballotbox/internal/platform/redis"
	httptransport "ballotbox/internal/transport/http"
	"ballotbox/internal/vault"
	vaultStore "ballotbox/internal/vault/store"
	"ballotbox/internal/voter"
	voterService "ballotbox/internal/voter/service"
	voterStore "ballotbox/internal/voter/store"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		voters    voter.Store
		tokens    vault.Store
		ballots   ballot.Store
		elections election.Store
		events    ledger.Store
		uow       vault.UnitOfWork
	)
	if db != nil {
		voters = voterStore.NewPostgresStore(db)
		tokens = vaultStore.NewPostgresStore(db)
		ballots = ballotStore.NewPostgresStore(db)
		elections = electionStore.NewPostgresStore(db)
		events = ledgerStore.NewPostgresStore(db)
		uow = vault.NewSQLUnitOfWork(db)
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory stores")
		voters = voterStore.NewMemoryStore()
		tokens = vaultStore.NewMemoryStore()
		ballots = ballotStore.NewMemoryStore()
		elections = electionStore.NewMemoryStore()
		events = ledgerStore.NewMemoryStore()
		uow = vault.NoopUnitOfWork{}
	}

	var lockoutCounter lockout.Store
	if redisClient != nil {
		lockoutCounter = lockout.NewRedisStore(redisClient.Client)
	} else {
		lockoutCounter = lockout.NewMemoryStore()
	}

	m := metrics.New()

	ledgerSvc := ledger.NewService(events, ledger.WithLogger(log))
	electionSvc := electionService.New(elections, ledgerSvc, log)
	voterSvc := voterService.New(voters, ledgerSvc, log)
	vaultSvc := vault.NewService(voters, tokens, electionSvc, ledgerSvc, uow, log, cfg.BallotTokenTTL)
	ballotSvc := ballotService.New(ballots, vaultSvc, electionSvc, ledgerSvc, uow, log)
	lockoutSvc := lockout.New(lockoutCounter, log, cfg.LockoutAttempts, cfg.LockoutWindow)
	jwtSvc := jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)

	handler := httptransport.NewHandler(
		vaultSvc, ballotSvc, electionSvc, voterSvc, ledgerSvc, lockoutSvc,
		cfg.IdentityTTL, m, log)
	router := httptransport.NewRouter(handler, jwtSvc, m, log)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
