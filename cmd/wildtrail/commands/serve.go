package commands

import (
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sagarmv/wildtrail/internal/web"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with live progress over websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := web.NewHub()
			go hub.Run()
			defer hub.Shutdown()

			app, err := openApp(cmd, hub.Broadcast)
			if err != nil {
				return err
			}
			defer app.Close()

			if port == "" {
				port = app.cfg.Server.Port
			}
			addr := net.JoinHostPort(app.cfg.Server.Host, port)

			server := web.NewServer(app.db, app.pipeline, app.engine, app.selector, hub)
			log.Printf("listening on http://%s", addr)
			if err := http.ListenAndServe(addr, server.Handler()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config)")

	return cmd
}
