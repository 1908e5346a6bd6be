// Command proxyserver runs the forward/CONNECT HTTP proxy.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/resinat/forwardproxy/internal/buildinfo"
	"github.com/resinat/forwardproxy/internal/config"
	"github.com/resinat/forwardproxy/internal/proxy"
	"github.com/resinat/forwardproxy/internal/store"
)

// stopGrace bounds how long main waits for srv.Stop (the accept loop noticing
// the listener closed) before going on with the rest of the shutdown anyway.
const stopGrace = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fatalf("%v", err)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		fatalf("create cache dir %s: %v", cfg.CacheDir, err)
	}

	emitter := proxy.NewEmitter()

	var storeSvc *store.Service
	var repo *store.Repo
	if cfg.StoreEnabled {
		dbPath := filepath.Join(cfg.CacheDir, "exchanges.db")
		repo, err = store.NewRepo(dbPath)
		if err != nil {
			fatalf("open exchange store %s: %v", dbPath, err)
		}
		storeSvc = store.NewService(emitter, repo, 0, nil)
		storeSvc.Start()
		log.Printf("proxyserver: exchange store enabled at %s", dbPath)
	}

	var janitor *proxy.Janitor
	if cfg.JanitorEnabled {
		janitor, err = proxy.NewJanitor(cfg.CacheDir, cfg.JanitorMaxAge.Std(), cfg.JanitorSchedule, nil)
		if err != nil {
			fatalf("configure janitor: %v", err)
		}
		janitor.Start()
		log.Printf("proxyserver: body cache janitor enabled, schedule=%q max-age=%s", cfg.JanitorSchedule, cfg.JanitorMaxAge.Std())
	}

	srv := proxy.NewServer(proxy.ServerConfig{
		CacheDir: cfg.CacheDir,
		Emitter:  emitter,
		Logf:     log.Printf,
	})
	if err := srv.Start(cfg.ListenAddress); err != nil {
		fatalf("%v", err)
	}
	log.Printf("proxyserver %s (commit %s, built %s) listening on %s, cache dir %s",
		buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime, srv.Addr(), cfg.CacheDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	signal.Stop(quit)
	log.Printf("proxyserver: received signal %s, shutting down...", sig)

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			log.Printf("proxyserver: listener close error: %v", err)
		}
	case <-time.After(stopGrace):
		log.Printf("proxyserver: shutdown grace period elapsed, exiting anyway")
	}

	if janitor != nil {
		janitor.Stop()
		log.Println("proxyserver: janitor stopped")
	}
	if storeSvc != nil {
		storeSvc.Stop()
		log.Println("proxyserver: exchange store stopped")
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			log.Printf("proxyserver: exchange store close error: %v", err)
		}
	}
	log.Println("proxyserver: stopped")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
