package main

import (
	"encoding/json"

	"github.com/sanonone/embedreduce/pkg/reduce"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the POST /pca request body",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := reduce.RequestSchema(cfg.Reduce.DefaultComponents)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
