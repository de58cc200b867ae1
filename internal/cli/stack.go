package cli

import (
	"github.com/spf13/cobra"
)

// NewStackCmd создаёт группу команд для stack'ов data store.
func NewStackCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Inspect data store stacks",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered stacks",
			RunE: func(cmd *cobra.Command, args []string) error {
				stacks, err := clientFn().ListStacks()
				if err != nil {
					return err
				}

				headers := []string{"NAME", "BUCKET", "PREFIX", "DATABASE", "TABLE"}
				rows := make([][]string, len(stacks))
				for i, s := range stacks {
					rows[i] = []string{s.Name, s.Bucket, s.Prefix, s.Database, s.Table}
				}

				outputFn().Print(headers, rows, stacks)
				return nil
			},
		},
		&cobra.Command{
			Use:   "partitions STACK",
			Short: "List partitions of the stack table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				partitions, err := clientFn().ListPartitions(args[0])
				if err != nil {
					return err
				}

				headers := []string{"VALUE", "LOCATION", "JOB_ID", "CREATED"}
				rows := make([][]string, len(partitions))
				for i, p := range partitions {
					rows[i] = []string{p.Value, p.Location, p.JobID, p.CreatedAt}
				}

				outputFn().Print(headers, rows, partitions)
				return nil
			},
		},
	)

	return cmd
}
