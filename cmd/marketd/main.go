// Package main implements marketd, the course marketplace daemon. It wires
// the GT ledger, course token factory, marketplace, talent match and staking
// services over a bolt database and serves the read-only HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/course_marketplace/internal/config"
	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/factory"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/httpapi"
	"github.com/R3E-Network/course_marketplace/internal/marketplace"
	"github.com/R3E-Network/course_marketplace/internal/staking"
	"github.com/R3E-Network/course_marketplace/internal/storage/bolt"
	"github.com/R3E-Network/course_marketplace/internal/talentmatch"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "Path to the bolt database file (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := logrus.InfoLevel
	if *debug {
		level = logrus.DebugLevel
	}
	log := logger.New("marketd", level)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Error("load config")
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if v := os.Getenv("MARKETD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("MARKETD_DB"); v != "" {
		cfg.DBPath = v
	}

	db, err := bolt.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Error("open database")
		os.Exit(1)
	}

	ledger := gt.NewToken()
	if cfg.Genesis > 0 {
		ledger.Mint(cfg.Owner, gt.Ether(cfg.Genesis))
		log.WithField("amount", cfg.Genesis).Info("minted genesis supply")
	}

	sink := events.Fanout(events.NewLogSink(log.WithField("component", "events")))
	ctx := context.Background()

	fac := factory.New(factory.Params{
		Owner:  cfg.Owner,
		Ledger: ledger,
		Events: sink,
		Logger: log.WithField("component", "factory"),
		Stores: func(collectionID string) (coursetoken.Store, error) {
			return db.CourseTokens(collectionID), nil
		},
	})

	mp, err := marketplace.New(ctx, marketplace.Params{
		Address:      "marketplace",
		Owner:        cfg.Owner,
		Ledger:       ledger,
		Store:        db.Listings(),
		Events:       sink,
		Logger:       log.WithField("component", "marketplace"),
		FeeRecipient: cfg.Treasury,
		FeeBP:        cfg.FeeBP,
	})
	if err != nil {
		log.WithError(err).Error("init marketplace")
		os.Exit(1)
	}

	tm, err := talentmatch.New(ctx, talentmatch.Params{
		Address:  "talentmatch",
		Owner:    cfg.Owner,
		Treasury: cfg.Treasury,
		Ledger:   ledger,
		Store:    db.Matches(),
		Events:   sink,
		Logger:   log.WithField("component", "talentmatch"),
		Scheme: talentmatch.ShareScheme{
			TalentShare:  cfg.Scheme.TalentShare,
			CoachShare:   cfg.Scheme.CoachShare,
			SponsorShare: cfg.Scheme.SponsorShare,
			TeacherShare: cfg.Scheme.TeacherShare,
		},
	})
	if err != nil {
		log.WithError(err).Error("init talent match")
		os.Exit(1)
	}

	stk, err := staking.New(ctx, staking.Params{
		Address: "staking",
		Ledger:  ledger,
		Store:   db.Stakes(),
		Events:  sink,
		Logger:  log.WithField("component", "staking"),
	})
	if err != nil {
		log.WithError(err).Error("init staking")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Ledger:      ledger,
		Factory:     fac,
		Marketplace: mp,
		TalentMatch: tm,
		Staking:     stk,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("marketd listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("database close")
	}
	log.Info("marketd stopped")
}
