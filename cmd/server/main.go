package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/jrsteele09/go-desktop-handoff/internal/logging"
	"github.com/jrsteele09/go-desktop-handoff/server"
	"github.com/jrsteele09/go-desktop-handoff/store/sqlite"
	"github.com/rs/zerolog/log"
)

const purgeInterval = 10 * time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
	logging.Close()
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup(logging.Options{Level: c.GetLogLevel(), File: c.GetLogFile(), Console: c.GetEnv() == "DEV"}); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
		return fmt.Errorf("create data folder: %w", err)
	}
	db, err := sqlite.Open(c.GetDatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := config.HandoffOptions(c)
	providers, err := newProviderRegistry(ctx, c, opts.Providers)
	if err != nil {
		return err
	}

	handler, err := server.New(c, opts, server.Repos{
		Users:    sqlite.NewUserRepo(db),
		Sessions: sqlite.NewSessionRepo(db),
		Flows:    sqlite.NewFlowStateRepo(db),
	}, providers)
	if err != nil {
		return err
	}
	go purgeExpired(ctx, handler)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func purgeExpired(ctx context.Context, s *server.Server) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
