package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradepost.gg/internal/persistence/indexdb"
	"tradepost.gg/internal/persistence/tradelog"
	"tradepost.gg/internal/presence"
	"tradepost.gg/internal/trade"
	"tradepost.gg/internal/transport/ws"
	"tradepost.gg/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides tuning)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite trade index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *addr != "" {
		tune.ListenAddr = *addr
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	roster := presence.NewRoster(tune.InteractionRange)
	bridge := ws.NewBridge(roster)
	service := trade.NewService(roster, roster, roster, bridge, trade.Config{
		RequestWindow: time.Duration(tune.RateLimits.RequestWindowSeconds) * time.Second,
		RequestMax:    tune.RateLimits.RequestMax,
	})

	// Audit trail: JSONL trade log is the source of truth, sqlite is a
	// queryable read model on top.
	tlog := tradelog.New(*dataDir)
	defer tlog.Close()
	sinks := []trade.Recorder{tlog}
	if !*disableDB {
		idx, err := indexdb.Open(filepath.Join(*dataDir, "index", "trades.db"))
		if err != nil {
			logger.Fatalf("open trade index: %v", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
	}
	service.SetRecorder(fanout(sinks))

	wsrv := ws.NewServer(roster, service, tune, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsrv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: tune.ListenAddr, Handler: mux}
	go func() {
		logger.Printf("listening on %s", tune.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

type fanout []trade.Recorder

func (f fanout) Record(e trade.AuditEntry) {
	for _, r := range f {
		r.Record(e)
	}
}
