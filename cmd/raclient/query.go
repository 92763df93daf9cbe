package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/natserract/raclients/pkg/graph"
)

func newQueryCommand(g *globals) *cobra.Command {
	var (
		file string
		url  string
		vars map[string]string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a GraphQL query against MO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read query: %w", err)
			}

			opts := []graph.Option{graph.WithLogger(g.logger)}
			if url != "" {
				opts = append(opts, graph.WithURL(url))
			}
			client, err := graph.NewClient(g.settings, opts...)
			if err != nil {
				return err
			}

			session, err := client.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			req := graph.NewRequest(string(query))
			for k, v := range vars {
				req.Var(k, v)
			}
			data, err := session.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with the GraphQL query")
	cmd.Flags().StringVar(&url, "url", "", "GraphQL endpoint, defaults to GRAPHQL_URL")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "query variable as key=value, may be repeated")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
