package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-receipt-server/config"
	"github.com/nixxel-company-limited/escpos-receipt-server/job"
	"github.com/nixxel-company-limited/escpos-receipt-server/server"
)

func serveCmd(d deps) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP print API (and the raw TCP passthrough when configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, d)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (skipped if missing)")
	return cmd
}

// serve runs the servers until ctx is done
func serve(ctx context.Context, cfg *config.Config, d deps) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	events := job.NewEvents()

	orchestrator, err := newOrchestrator(cfg, d, job.WithMetrics(job.NewMetrics(reg)), job.WithEvents(events))
	if err != nil {
		return err
	}

	log.Printf("Server will listen on: %s", cfg.Server.Address)
	api := server.New(orchestrator, cfg.Server.Address, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Events:         events,
		Gatherer:       reg,
	})
	if err := api.StartAsync(); err != nil {
		return err
	}

	var raw *server.RawServer
	if cfg.Server.RawAddress != "" {
		log.Printf("Raw passthrough will listen on: %s (printer %d)", cfg.Server.RawAddress, cfg.Printer.Index)
		raw = server.NewRaw(orchestrator, cfg.Server.RawAddress, cfg.Printer.Index)
		if err := raw.StartAsync(); err != nil {
			api.Stop()
			return err
		}
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	if raw != nil {
		raw.Stop()
	}
	err = api.Stop()
	orchestrator.Wait()
	return err
}
