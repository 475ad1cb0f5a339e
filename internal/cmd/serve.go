package cmd

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/metrics"
	"github.com/felixgeelhaar/autoheal/internal/server"
	"github.com/felixgeelhaar/autoheal/internal/version"
)

func newServeCmd() *cobra.Command {
	var address string
	var platforms []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health probes, metrics and the deployment history over HTTP",
		Long: `Start the HTTP server:

  /health/live, /health/ready   liveness and readiness probes
  /metrics                      Prometheus metrics
  /deployments, /deployments/ID recorded rollouts

Readiness checks the deployment store and, when monitor.url is set, the
health of each --platform.`,
		Example: `  autoheal serve --address :9090 --platform gmail --platform outlook`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			cfg := a.cfg.Server
			if address != "" {
				cfg.Address = address
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			manager := health.NewManager()
			manager.Add(st.Checker())
			if a.cfg.Monitor.URL != "" {
				mon, err := a.monitor()
				if err != nil {
					return err
				}
				if len(platforms) == 0 {
					platforms = []string{a.cfg.Platform}
				}
				for _, p := range platforms {
					manager.Add(health.NewPlatformChecker(mon, p, 0))
				}
			}
			probes := health.NewProbes(manager, version.GetInfo().Short())

			srv := server.New(cfg, probes, st, metrics.HandlerFor(a.registry), a.logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if stderrors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
				a.logger.Info("shutting down")
				if err := srv.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
					return err
				}
				if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (default: server.address)")
	cmd.Flags().StringArrayVar(&platforms, "platform", nil, "platform whose health gates readiness (repeatable)")
	return cmd
}
