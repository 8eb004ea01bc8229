// Package httpd implements the httpd command, which serves the search
// and maintenance HTTP API.
package httpd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/api"
)

// Command returns the httpd command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Serve the search and maintenance HTTP API",
		Long: `Httpd starts the HTTP server exposing semantic search, store stats,
and embedding maintenance endpoints. The server shuts down gracefully
on interrupt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			searcher, err := deps.Searcher(cmd.Context())
			if err != nil {
				return err
			}

			store, err := deps.Store()
			if err != nil {
				return err
			}

			indexer, err := deps.Indexer(cmd.Context())
			if err != nil {
				return err
			}

			server := api.NewServer(searcher, store, indexer, api.ServerConfig{
				Address:      deps.Cfg.Server.Address,
				ReadTimeout:  deps.Cfg.Server.ReadTimeout,
				WriteTimeout: deps.Cfg.Server.WriteTimeout,
			}, deps.Log)

			return server.Start(cmd.Context())
		},
	}
}
