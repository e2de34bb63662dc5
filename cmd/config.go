package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func configCommands(b *economyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instances computed configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cnf := *b.cnf
			if cnf.Server.SecretKey != "" {
				cnf.Server.SecretKey = "********"
			}
			if cnf.Backup.AwsSecretAccessKey != "" {
				cnf.Backup.AwsSecretAccessKey = "********"
			}

			data, err := json.MarshalIndent(cnf, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %v", err)
			}

			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}
