package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sponsorchain.org/internal/arbitration"
	"sponsorchain.org/internal/config"
	"sponsorchain.org/internal/factory"
	"sponsorchain.org/internal/httpapi"
	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/nft"
	"sponsorchain.org/internal/obs"
	"sponsorchain.org/internal/sim"
	pgstore "sponsorchain.org/internal/store/pg"
	"sponsorchain.org/internal/stream"
	"sponsorchain.org/internal/treasury"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Treasury backend: Postgres when a DSN is configured, otherwise the
	// in-process engine. The rest of the wiring is identical.
	var (
		funds treasury.Service
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pgstore.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		funds = store
		db = store.DB()
		defer store.Close()
	} else {
		funds = treasury.NewInMemory()
	}

	registry := identity.NewRegistry(cfg.AdminAddress)
	deals := ledger.NewInMemory(treasury.NewGateway(funds), registry)
	tokens := nft.NewRegistry(factory.DefaultMinterAddress)
	orchestrator := factory.New(deals, registry, tokens)
	disputes := arbitration.NewEngine(deals, registry)
	feed := stream.New()

	if cfg.DemoStream {
		gen := sim.NewGenerator(0)
		stopDemo := feed.StartDemo(cfg.DemoInterval, gen.NextEvent)
		defer stopDemo()
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Identity: registry,
		Factory:  orchestrator,
		Ledger:   deals,
		Disputes: disputes,
		Tokens:   tokens,
		Treasury: funds,
		Stream:   feed,
	})
	api.Tune(cfg.TokenTTL, cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sponsorchain-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
