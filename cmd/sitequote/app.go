package main

import (
	"fmt"
	"time"

	"github.com/sitequote/sitequote/internal/api"
	"github.com/sitequote/sitequote/internal/audit"
	"github.com/sitequote/sitequote/internal/config"
	"github.com/sitequote/sitequote/internal/logging"
	"github.com/sitequote/sitequote/internal/netmon"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/repo"
	"github.com/sitequote/sitequote/internal/storage"
	"github.com/sitequote/sitequote/internal/syncer"
)

// app bundles the wired-up data layer a command works against. Every
// command opens the store, does its work, and closes it; there is no
// long-running daemon except `watch`.
type app struct {
	cfg        config.Config
	store      storage.Store
	queue      *queue.Queue
	tombstones *repo.Tombstones
	sessionLog *audit.Log
	customers  *repo.CustomerRepo
	quotes     *repo.QuoteRepo
	floorplans *repo.FloorPlanRepo
	client     *api.Client
	engine     *syncer.Engine
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	q := queue.New(store)
	ts := repo.NewTombstones(store)
	sessionLog := audit.New(store)
	customers := repo.NewCustomers(store, q, ts)
	quotes := repo.NewQuotes(store, q, ts)
	floorplans := repo.NewFloorPlans(store, q, ts)

	client := api.New(cfg.API.BaseURL, cfg.API.Token, time.Duration(cfg.Sync.TimeoutSeconds)*time.Second)

	engine := syncer.New(syncer.Deps{
		Client:     client,
		Customers:  customers,
		Quotes:     quotes,
		FloorPlans: floorplans,
		Queue:      q,
		Tombstones: ts,
		Log:        sessionLog,
	})

	return &app{
		cfg:        cfg,
		store:      store,
		queue:      q,
		tombstones: ts,
		sessionLog: sessionLog,
		customers:  customers,
		quotes:     quotes,
		floorplans: floorplans,
		client:     client,
		engine:     engine,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) monitor() *netmon.Monitor {
	return netmon.New(netmon.NewHTTPProbe(a.cfg.API.BaseURL + "/health"))
}
