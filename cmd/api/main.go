package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/moodline/backend/internal/app"
	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/handler"
	"github.com/zhouzirui/moodline/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	engine, err := app.NewEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize dialogue engine: %v", err)
	}

	archiver, err := app.NewArchive(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("failed to initialize archive: %v", err)
	}
	if cfg.Archive.Table != "" {
		log.Printf("archiving closed sessions to DynamoDB table %s", cfg.Archive.Table)
	} else {
		log.Println("ARCHIVE_TABLE 未配置，关闭的会话仅保存在内存中")
	}

	chatService := chat.NewService(engine, archiver)

	reaper, err := chat.NewReaper(chatService, cfg.Session.IdleTTL, cfg.Session.ReaperSchedule)
	if err != nil {
		log.Fatalf("failed to initialize session reaper: %v", err)
	}
	reaper.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		reaper.Stop(stopCtx)
	}()

	router := handler.NewRouter(chatService, chat.ExitPhrases(cfg.Session.ExitPhrases))

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("moodline backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
