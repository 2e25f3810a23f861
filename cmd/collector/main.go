// cmd/collector/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tamzrod/cgm-collector/internal/config"
	"github.com/tamzrod/cgm-collector/internal/control"
	"github.com/tamzrod/cgm-collector/internal/events"
	"github.com/tamzrod/cgm-collector/internal/logging"
	"github.com/tamzrod/cgm-collector/internal/metrics"
	"github.com/tamzrod/cgm-collector/internal/poller"
	"github.com/tamzrod/cgm-collector/internal/status"
	"github.com/tamzrod/cgm-collector/internal/store"
	"github.com/tamzrod/cgm-collector/internal/writer"
)

type closableStore interface {
	poller.Store
	Close() error
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: collector <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	c := cfg.Collector

	ctx, finish := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer finish()

	logger := logging.NewStdLogger(log.New(os.Stdout, "", log.LstdFlags), c.Debug)
	clk := clock.New()

	// --------------------
	// Telemetry
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	reporter := events.Multi{events.NewLogReporter(logger), m}

	// --------------------
	// Store
	// --------------------

	var st closableStore
	if c.Store.DSN != "" {
		pg, err := store.Open(ctx, c.Store.DSN, c.Store.Table)
		if err != nil {
			log.Fatalf("store open failed: %v", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("store schema failed (table=%s): %v", c.Store.Table, err)
		}
		st = pg
	} else {
		logger.Info("no store dsn configured, readings are kept in memory")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	// --------------------
	// Polling pipeline
	// --------------------

	out := make(chan poller.Result)

	built, closePoller, err := poller.Build(c, poller.BuildDeps{
		Store:     st,
		Reporter:  reporter,
		Telemetry: m,
		Logger:    logger,
		Clock:     clk,
		Results:   out,
	})
	if err != nil {
		log.Fatalf("poller build failed (device=%s): %v", c.Device.Type, err)
	}
	defer func() {
		if err := closePoller(); err != nil {
			logger.Error("device session close failed: %v", err)
		}
	}()

	// --------------------
	// Status export (optional)
	// --------------------

	plan, err := writer.BuildPlan(c.Status)
	if err != nil {
		log.Fatalf("writer plan failed: %v", err)
	}

	var clients map[string]writer.RegisterClient
	if c.Status != nil {
		var closeWriters func() error
		clients, closeWriters, err = writer.BuildEndpointClients(plan, time.Duration(c.Status.TimeoutMs)*time.Millisecond)
		if err != nil {
			log.Fatalf("writer clients failed (endpoint=%s): %v", c.Status.Endpoint, err)
		}
		defer closeWriters()
	}

	dataWriter, dataEnabled := writer.NewReadingWriter(plan, clients)
	statusWriter, statusEnabled := writer.NewDeviceStatusWriter(plan, clients)

	wg := &sync.WaitGroup{}

	// Orchestrator (runner-owned state + 1Hz seconds ticker)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker := status.NewTracker()

		secTicker := clk.Ticker(time.Second)
		defer secTicker.Stop()

		// Full block write on start (identity re-assert) if enabled.
		if statusEnabled {
			if err := statusWriter.WriteStatus(tracker.Snapshot()); err != nil {
				logger.Error("status write failed on start: %v", err)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case res := <-out:
				logger.Info("attempt %s done (trigger=%s status=%s next=%s)", res.AttemptID, res.Trigger.Kind, res.Status, res.Delay)

				// --- data delivery ---
				if dataEnabled {
					if err := dataWriter.Write(res); err != nil {
						logger.Error("reading write failed: %v", err)
					}
				}

				// --- status update ---
				if tracker.Apply(res) && statusEnabled {
					if err := statusWriter.WriteStatus(tracker.Snapshot()); err != nil {
						logger.Error("status write failed: %v", err)
					}
				}

			case <-secTicker.C:
				remaining, scheduled := built.Scheduler.RemainingUntilNext()
				if tracker.Tick(remaining, scheduled) && statusEnabled {
					if err := statusWriter.WriteStatus(tracker.Snapshot()); err != nil {
						logger.Error("status seconds tick write failed: %v", err)
					}
				}
			}
		}
	}()

	// poll runner
	wg.Add(1)
	go func() {
		defer wg.Done()
		built.Runner.Run(ctx)
	}()

	// --------------------
	// Control surface (optional)
	// --------------------

	if c.Control.Addr != "" {
		srv := control.NewServer(c.Control.Addr, control.NewHandler(built.Runner, built.Scheduler, reg, logger), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("control server stopped: %v", err)
				finish()
			}
		}()
	}

	// First poll right away.
	built.Runner.Submit(poller.Trigger{Kind: poller.TriggerManual})

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()
	logger.Info("all components stopped")
}
