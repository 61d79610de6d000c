package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/fraudshield/pkg/artifacts"
	"github.com/hed1ad/fraudshield/pkg/cache"
	"github.com/hed1ad/fraudshield/pkg/metrics"
	"github.com/hed1ad/fraudshield/pkg/server"
)

func newServeCmd(g *globalParams) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP scoring API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("address") {
				g.cfg.Server.Address = address
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, g *globalParams) error {
	set, err := artifacts.Load(g.cfg.Models)
	if err != nil {
		return errors.Wrap(err, "error loading artifacts")
	}
	p, err := set.Pipeline()
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithMetrics(metrics.New())}

	c, err := cache.New(g.cfg.Cache)
	if err != nil {
		return err
	}
	if c != nil {
		if r, ok := c.(*cache.Redis); ok {
			if err := r.Ping(ctx); err != nil {
				log.WithError(err).Warn("redis cache unreachable")
			}
		}
		if closer, ok := c.(io.Closer); ok {
			defer closer.Close()
		}
		opts = append(opts, server.WithCache(c, set.Fingerprint))
		log.WithField("backend", g.cfg.Cache.Backend).Info("result cache enabled")
	}

	s, err := server.New(g.cfg.Server, p, opts...)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
