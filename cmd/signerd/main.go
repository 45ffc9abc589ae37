package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"oneauth/internal/config"
	"oneauth/internal/pipeline"
	"oneauth/internal/signer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	var sgn *signer.Signer
	if cfg.Signer.PrivateKeyHex != "" {
		sgn, err = signer.New(cfg.Signer.PrivateKeyHex, cfg.Signer.DeveloperID)
		if err != nil {
			log.Fatalf("signer key error: %v", err)
		}
	} else {
		log.Printf("no signer key configured; sign requests will fail")
	}

	metrics := pipeline.NewMetrics()
	srv := signer.NewServer(cfg.Signer, sgn, metrics)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Signer.HTTPPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("signer listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
