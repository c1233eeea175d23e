package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"moltcraft.dev/internal/config"
	"moltcraft.dev/internal/persistence"
	"moltcraft.dev/internal/persistence/indexdb"
	persistlog "moltcraft.dev/internal/persistence/log"
	"moltcraft.dev/internal/protocol"
	"moltcraft.dev/internal/ratelimit"
	"moltcraft.dev/internal/transport/rest"
	"moltcraft.dev/internal/transport/ws"
	"moltcraft.dev/internal/world"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "config file path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite mutation index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	limits := cfg.ProtocolLimits()

	w := world.New(world.Config{Limits: limits}, logger)

	// Seed from the durable copy. Missing or corrupt file starts an
	// empty world rather than failing startup.
	store := persistence.NewStore(filepath.Join(cfg.DataDir, "world.json"))
	wf, err := store.Load()
	if err != nil {
		logger.Printf("world file: %v (starting empty)", err)
	}
	w.SeedBlocks(wf)
	logger.Printf("seeded %d blocks from %s", len(wf), store.Path())

	// Open the index first: a failure here exits before any other
	// resource needs tearing down.
	var idx *indexdb.SQLiteIndex
	var idxLogger world.AuditLogger
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(cfg.DataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
		idxLogger = idx
	} else {
		logger.Printf("mutation index disabled (-disable_db)")
	}

	auditLog := persistlog.NewAuditLogger(cfg.DataDir)
	defer auditLog.Close()
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idxLogger})

	snapCh := make(chan persistence.WorldFile, 2)
	w.SetSnapshotSink(snapCh)

	ctx, cancel := signalContext()
	defer cancel()

	limiter := ratelimit.New(
		time.Duration(cfg.RateLimits.WindowMs)*time.Millisecond,
		cfg.RateLimits.GeneralMax,
		cfg.RateLimits.BlockMax,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP moltcraft_world_blocks Current number of blocks in the world.\n")
		fmt.Fprintf(rw, "# TYPE moltcraft_world_blocks gauge\n")
		fmt.Fprintf(rw, "moltcraft_world_blocks %d\n", m.Blocks)

		fmt.Fprintf(rw, "# HELP moltcraft_world_agents Current number of spawned agents.\n")
		fmt.Fprintf(rw, "# TYPE moltcraft_world_agents gauge\n")
		fmt.Fprintf(rw, "moltcraft_world_agents %d\n", m.Agents)

		fmt.Fprintf(rw, "# HELP moltcraft_world_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE moltcraft_world_clients gauge\n")
		fmt.Fprintf(rw, "moltcraft_world_clients %d\n", m.Clients)

		fmt.Fprintf(rw, "# HELP moltcraft_world_inbox_depth Mutation inbox backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE moltcraft_world_inbox_depth gauge\n")
		fmt.Fprintf(rw, "moltcraft_world_inbox_depth %d\n", m.InboxDepth)
	})
	mux.HandleFunc("/ws", ws.NewServer(w, limiter, limits, logger).Handler())
	mux.Handle("/", rest.NewServer(w, limiter, limits, logger).Router())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runSnapshotWriter(gctx, snapCh, store, idx, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

// runSnapshotWriter serializes block snapshots to the world file off
// the mutation path. A failed write is logged and skipped; the
// durable copy lags until the next successful write. On shutdown any
// pending snapshot is flushed.
func runSnapshotWriter(ctx context.Context, snapCh chan persistence.WorldFile, store *persistence.Store, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	write := func(wf persistence.WorldFile) {
		if err := store.Write(wf); err != nil {
			logger.Printf("%v", &protocol.PersistenceError{Op: "write", Err: err})
			return
		}
		if idx != nil {
			idx.RecordSnapshot(store.Path(), len(wf))
		}
	}
	for {
		select {
		case <-ctx.Done():
			select {
			case wf := <-snapCh:
				write(wf)
			default:
			}
			return
		case wf := <-snapCh:
			write(wf)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
