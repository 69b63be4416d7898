package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ask pipeline over HTTP",
	Long: `Start an HTTP server exposing POST /v1/ask, GET /v1/tables, GET /v1/schema,
GET /v1/index/status, POST /v1/index, GET /healthz and GET /metrics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		handler, err := newHandler(a)
		if err != nil {
			return err
		}

		return server.New(cfg.Server, handler, a.logger).Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
}

func newHandler(a *app) (http.Handler, error) {
	engine, err := a.engine()
	if err != nil {
		return nil, err
	}

	deps := server.Dependencies{Engine: engine, Schemas: a.schemas, Logger: a.logger}
	if a.embedder != nil {
		deps.Indexer = a.indexer
	}

	return server.NewHandler(deps), nil
}
