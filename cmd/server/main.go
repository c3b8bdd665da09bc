// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/config"
	"github.com/WalterHenri/blackjack-rendezvous/internal/server"
	"github.com/WalterHenri/blackjack-rendezvous/internal/status"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindHost, cfg.HTTPPort),
		Handler:      status.New(srv, cfg.AdminKey, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 2)
	go func() {
		errc <- srv.Serve(ctx)
	}()
	go func() {
		logger.WithField("addr", httpSrv.Addr).Info("status surface listening")
		errc <- httpSrv.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	// Accept loops stop first; sessions drain their current frame, then the
	// reaper exits at its next wake.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
