package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"microarena/server"
)

// microarena 入口：加载配置，启动 HTTP + WebSocket 服务与房间管理器
func main() {
	var (
		addr    string
		cfgPath string
		dataDir string
		logFile string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides config)")
	flag.StringVar(&cfgPath, "config", "", "path to a TOML config file")
	flag.StringVar(&dataDir, "data", "", "directory for room snapshots (empty keeps rooms in memory)")
	flag.StringVar(&logFile, "log", "", "log file path (overrides config; \"-\" writes to stderr)")
	flag.Parse()

	cfg := server.DefaultConfig()
	if cfgPath != "" {
		loaded, err := server.LoadConfig(cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}
	switch logFile {
	case "":
	case "-":
		cfg.Log.File = ""
	default:
		cfg.Log.File = logFile
	}

	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if err := run(cfg); err != nil {
		server.Log.Errorw("server exited", "err", err)
		server.SyncLogger()
		os.Exit(1)
	}
}

func run(cfg server.Config) error {
	rm := server.NewRoomManager(cfg)
	// 先预创建默认房间，便于快速试跑
	if _, err := rm.GetOrCreateRoom(cfg.Room.DefaultRoom); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewMux(rm),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Log.Infow("microarena listening", "addr", cfg.Addr, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		server.Log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), rm.Shutdown(sctx))
	})
	return g.Wait()
}
