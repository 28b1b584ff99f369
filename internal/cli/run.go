package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse-io/authz-go/internal/server"
)

func cmdRun() *cobra.Command {
	var addr string
	var backend string

	c := &cobra.Command{
		Use:   "run",
		Short: "Start the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if backend != "" {
				cfg.PolicyBackend = backend
			}

			app, err := server.NewApp(cmd.Context(), server.AppConfig{
				PolicyBackend:        cfg.PolicyBackend,
				RevalidationInterval: time.Duration(cfg.RevalidationSeconds) * time.Second,
				EnableCORS:           true,
			})
			if err != nil {
				return fmt.Errorf("failed to assemble server: %w", err)
			}
			defer app.Shutdown()

			fmt.Printf("listening on %s (policy backend: %s)\n", cfg.ListenAddr, cfg.PolicyBackend)
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           app.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return srv.ListenAndServe()
		},
	}
	c.Flags().StringVar(&addr, "listen", "", "listen address, overrides config")
	c.Flags().StringVar(&backend, "backend", "", "policy backend: memory|redis, overrides config")
	return c
}
