package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"srs_generator/config"
	"srs_generator/server"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, true, func(c *config.Config) {
				if addr != "" {
					c.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(func(jobDir string) (server.Runner, error) {
		return a.newPipeline(filepath.Join(jobDir, "diagrams"))
	}, server.Options{
		OutputDir:  a.cfg.Server.OutputDir,
		JobTTL:     a.cfg.Server.JobTTL,
		MaxJobs:    a.cfg.Server.MaxJobs,
		JobTimeout: a.cfg.Server.JobTimeout,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting web server", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		srv.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	srv.Close()
	return err
}
