package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mulldb/cc"
	"mulldb/config"
	"mulldb/server"
	"mulldb/storage"
	"mulldb/txn"
)

func main() {
	cfg := config.Parse()

	engine, err := storage.Open(cfg.DataDir, cfg.Migrate)
	if err != nil {
		log.Fatalf("open storage engine: %v", err)
	}
	defer engine.Close()

	ccManager := cc.NewSwitcher(cfg.CCAlgorithm)
	walPath := filepath.Join(cfg.DataDir, "recovery.log")
	coord, err := txn.New(engine, ccManager, walPath, cfg.CheckpointThreshold)
	if err != nil {
		log.Fatalf("open recovery log: %v", err)
	}
	defer coord.Close()

	srv := server.New(cfg, coord)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
