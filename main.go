package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"auctionhall/api"
)

func setupLogger(args Args) {
	opts := &slog.HandlerOptions{Level: args.Level()}
	var handler slog.Handler
	if args.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	// .env 不存在時只使用環境變數和參數
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Fail to load .env file", slog.Any("error", err))
	}
	args := ParseArgs()
	setupLogger(args)
	if !args.Validate() {
		slog.Error("Missing arguments")
		os.Exit(2)
	}

	server, err := api.NewServer(args.ServerConfig)
	if err != nil {
		slog.Error("Fail to create server", slog.Any("error", err))
		os.Exit(1)
	}
	server.Start()
	defer server.Close()

	router := server.Router(gin.Recovery(), gin.Logger())
	httpServer := &http.Server{
		Addr:              args.ServerURL,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// SSE 連線不會自己結束，關閉時先中斷串流
	httpServer.RegisterOnShutdown(server.CloseStreams)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		slog.Info("Server is running", slog.String("address", args.ServerURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Fail to serve", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Fail to shutdown server", slog.Any("error", err))
	}
}
