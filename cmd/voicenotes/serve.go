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

	"github.com/spf13/cobra"

	"github.com/52poke/voicenotes/internal/config"
	httpx "github.com/52poke/voicenotes/internal/http"
	"github.com/52poke/voicenotes/internal/metrics"
	"github.com/52poke/voicenotes/internal/push"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the cache generation and serve the app cache-first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	w, err := newWorker(cfg, d)
	if err != nil {
		return err
	}
	handler, err := httpx.NewHandler(cfg.OriginURL, w)
	if err != nil {
		return err
	}

	pushHandler := push.NewHandler(d.notifier(cfg))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(rw http.ResponseWriter, r *http.Request) {
		if !w.Controlling() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
	})
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, metrics.Handler())
	}
	pushHandler.Register(mux, cfg.EventsPrefix)
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// failures leave the proxy passing everything through; they are logged
	// inside the worker
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("lifecycle stopped in state %s", w.State())
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s, origin %s, cache %s", cfg.ListenAddr, cfg.OriginURL, cfg.CacheVersion)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	w.Wait()
	return err
}

func newInstallCmd(configPath *string) *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Populate the current cache generation and optionally activate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			d, err := buildDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.close()

			w, err := newWorker(cfg, d)
			if err != nil {
				return err
			}
			if err := w.Install(cmd.Context()); err != nil {
				return err
			}
			if activate && w.SkipWaiting() {
				if err := w.Activate(cmd.Context()); err != nil {
					return err
				}
			}
			cmd.Printf("%s: %s (%d assets)\n", cfg.CacheVersion, w.State(), len(w.Manifest()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", true, "delete superseded generations after installing")
	return cmd
}

func newGenerationsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generations",
		Short: "List cache generations and their entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			d, err := buildDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.close()

			ctx := cmd.Context()
			names, err := d.storage.Names(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				gen, err := d.storage.Open(ctx, name)
				if err != nil {
					return err
				}
				keys, err := gen.Keys(ctx)
				if err != nil {
					return err
				}
				marker := " "
				if name == cfg.CacheVersion {
					marker = "*"
				}
				cmd.Printf("%s %s\t%d entries\n", marker, name, len(keys))
			}
			return nil
		},
	}
}
