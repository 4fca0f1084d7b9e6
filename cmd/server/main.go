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
	"syscall"
	"time"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/config"
	"diagram-sync/internal/handlers"
	"diagram-sync/internal/logger"
	"diagram-sync/internal/store"
)

func main() {
	configPath := flag.String("config", "", "配置文件 (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logData, err := logger.New().FromPath(cfg.Log.Path).Level(cfg.Log.Level).Make()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logData.Close()
	lg := logData.Logger

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		lg.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
	}
	defer st.Close()

	var aiClient ai.Client
	if cfg.AI.Enabled {
		aiClient = ai.NewDashScopeClient(cfg.AI.APIKey, cfg.AI.Endpoint, cfg.AI.Model)
	}

	api := handlers.NewAPI(handlers.Options{
		Registry: adapter.DefaultRegistry(cfg.Layout.Spacing),
		AI:       aiClient,
		Store:    st,
		Debounce: cfg.Sync.Debounce,
		Spacing:  cfg.Layout.Spacing,
		Logger:   lg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("🚀 Diagram Sync Server\n")
		fmt.Printf("📡 服务地址: http://localhost%s\n", cfg.Server.Addr)
		fmt.Printf("🔌 编辑会话: ws://localhost%s/api/ws\n\n", cfg.Server.Addr)
		lg.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Store.Driver).Bool("ai", aiClient != nil).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("shutdown")
	}
	lg.Info().Msg("server stopped")
}
