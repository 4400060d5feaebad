// Command marketd runs a marketplace ledger node.
//
// Standalone, it orders transactions itself and serves the Market gRPC
// service. With -abci (or listen.abci) it is a Tendermint application:
// blocks come from the consensus engine and submissions are broadcast
// through -tendermint-rpc.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"promphub.io/market/abciapp"
	"promphub.io/market/chain"
	"promphub.io/market/client"
	"promphub.io/market/config"
	"promphub.io/market/events"
	"promphub.io/market/ledger"
	"promphub.io/market/program"
	"promphub.io/market/rpcsvc"
	"promphub.io/market/storage"
	"promphub.io/market/storage/bundle"
	"promphub.io/market/storage/localfs"
	"promphub.io/market/store"

	_ "promphub.io/market/store/memory"
	_ "promphub.io/market/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("marketd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML config file")
	grpcAddr := fs.String("grpc", "", "gRPC listen address (overrides listen.grpc)")
	abciAddr := fs.String("abci", "", "ABCI socket address (overrides listen.abci)")
	wsAddr := fs.String("ws", "", "websocket event feed address (overrides listen.ws)")
	tmRPC := fs.String("tendermint-rpc", "", "Tendermint RPC used to broadcast in ABCI mode")
	listBackends := fs.Bool("list-backends", false, "List supported store backends and exit")
	writeConfig := fs.String("write-config", "", "Write the effective config to this path and exit")
	exportPath := fs.String("export-archive", "", "Write the archive head snapshot as a TAR bundle to this path and exit")
	importPath := fs.String("import-archive", "", "Import a TAR bundle into the snapshot archive and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listBackends {
		for _, b := range store.List() {
			if b.Description == "" {
				_, _ = fmt.Fprintf(stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	override(&cfg.Listen.GRPC, *grpcAddr)
	override(&cfg.Listen.ABCI, *abciAddr)
	override(&cfg.Listen.WebSocket, *wsAddr)
	override(&cfg.Chain.TendermintRPC, *tmRPC)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *writeConfig != "" {
		if err := cfg.WriteFile(*writeConfig); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	if *exportPath != "" || *importPath != "" {
		if err := transferArchive(cfg.Archive, *exportPath, *importPath, stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	log, err := cfg.Log.Logger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := serve(ctx, cfg, log); err != nil {
		log.Error("marketd stopped", "err", err)
		return 1
	}
	return 0
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	kv, err := store.Open(cfg.Store.Backend, cfg.Store.Options)
	if err != nil {
		return err
	}
	defer kv.Close()

	archive, err := openArchive(cfg.Archive)
	if err != nil {
		return err
	}
	if archive != nil {
		head, restored, err := abciapp.RestoreLatest(kv, archive)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		if restored {
			log.Info("restored snapshot", "height", head.Height, "cid", head.CID)
		}
	}

	var pubs events.Fanout
	if cfg.Events.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.Events.NATSURL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		pubs = append(pubs, np)
	}
	var feedSrv *http.Server
	if cfg.Listen.WebSocket != "" {
		feed := events.NewFeed(log.With("component", "feed"))
		pubs = append(pubs, feed)
		mux := http.NewServeMux()
		mux.Handle("/events", feed)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok\n") })
		feedSrv = &http.Server{Addr: cfg.Listen.WebSocket, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	defer pubs.Close()

	opts := cfg.ChainOptions()
	opts.External = cfg.Listen.ABCI != ""
	opts.Logger = log.With("component", "chain")
	opts.Publisher = pubs
	rt, err := chain.New(ledger.New(kv), program.New(cfg.ProgramKey(), cfg.ProgramPolicy()), opts)
	if err != nil {
		return err
	}

	var backend client.Backend = rt
	if opts.External {
		app := abciapp.New(rt, abciapp.Options{Archive: archive, SnapshotEvery: cfg.Archive.Every, Logger: log})
		srv, err := abciapp.NewServer(app, cfg.Listen.ABCI, log)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
		gw := &abciapp.Gateway{Runtime: rt}
		if cfg.Chain.TendermintRPC != "" {
			if gw.Broadcaster, err = abciapp.NewHTTPBroadcaster(cfg.Chain.TendermintRPC); err != nil {
				return err
			}
		}
		backend = gw
		log.Info("abci server listening", "addr", srv.Addr())
	}

	lis, err := net.Listen("tcp", cfg.Listen.GRPC)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	rpcsvc.RegisterMarketServer(gs, &rpcsvc.Server{Backend: backend, Log: log.With("component", "rpc")})

	errc := make(chan error, 2)
	go func() { errc <- gs.Serve(lis) }()
	if feedSrv != nil {
		go func() {
			if err := feedSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
		log.Info("event feed listening", "addr", feedSrv.Addr)
	}
	if archive != nil && !opts.External {
		go checkpointLoop(ctx, rt, archive, cfg.Archive.Every, log)
	}
	log.Info("marketd listening", "grpc", lis.Addr().String(), "backend", cfg.Store.Backend,
		"program", cfg.ProgramID, "height", rt.Height(), "consensus", opts.External)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
	}
	gs.GracefulStop()
	if feedSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = feedSrv.Shutdown(sctx)
		cancel()
	}
	if archive != nil && !opts.External {
		if _, cerr := abciapp.Checkpoint(rt, archive, log); cerr != nil {
			log.Warn("final snapshot failed", "err", cerr)
		}
	}
	return err
}

// openArchive returns nil when archiving is disabled, the local archive, or
// a replicating archive over the local one and its mirrors.
func openArchive(cfg config.ArchiveConfig) (storage.SnapshotArchive, error) {
	if cfg.Dir == "" {
		return nil, nil
	}
	primary, err := localfs.New(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(cfg.Mirrors) == 0 {
		return primary, nil
	}
	r := storage.Replicating{Archives: []storage.NamedArchive{{Name: cfg.Dir, Archive: primary}}}
	for _, dir := range cfg.Mirrors {
		m, err := localfs.New(dir)
		if err != nil {
			return nil, err
		}
		r.Archives = append(r.Archives, storage.NamedArchive{Name: dir, Archive: m})
	}
	return r, nil
}

// transferArchive exports the archive head to exportPath and/or imports the
// bundle at importPath, reporting the resulting head on stdout.
func transferArchive(cfg config.ArchiveConfig, exportPath, importPath string, stdout io.Writer) error {
	if cfg.Dir == "" {
		return fmt.Errorf("archive.dir is required to export or import snapshots")
	}
	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if importPath != "" {
		f, err := os.Open(importPath)
		if err != nil {
			return err
		}
		h, found, err := bundle.Import(f, archive)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("import %s: %w", importPath, err)
		}
		if found {
			_, _ = fmt.Fprintf(stdout, "imported height=%d cid=%s\n", h.Height, h.CID)
		} else {
			_, _ = fmt.Fprintf(stdout, "imported %s (no head)\n", importPath)
		}
	}
	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return err
		}
		h, err := bundle.Export(f, archive, bundle.ExportOptions{})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(exportPath)
			return fmt.Errorf("export %s: %w", exportPath, err)
		}
		_, _ = fmt.Fprintf(stdout, "exported height=%d cid=%s\n", h.Height, h.CID)
	}
	return nil
}

// checkpointLoop archives a standalone node every `every` heights.
func checkpointLoop(ctx context.Context, rt *chain.Runtime, archive storage.SnapshotArchive, every uint64, log *slog.Logger) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	var last uint64
	if head, err := archive.Head(); err == nil {
		last = head.Height
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if rt.Height() < last+every {
				continue
			}
			head, err := abciapp.Checkpoint(rt, archive, log)
			if err != nil {
				log.Warn("snapshot failed", "err", err)
				continue
			}
			last = head.Height
		}
	}
}
