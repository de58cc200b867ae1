package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewIngestCmd создаёт команду запуска выгрузки отчёта.
func NewIngestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Download the permits report into the data lake",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ack, err := client.SubmitReport()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Ingest submitted: %s", ack.SyncRunnerJobID))

			if wait <= 0 {
				out.Print(
					[]string{"JOB_ID", "TASK", "FILE_PATH", "CALLED_AT"},
					[][]string{{ack.JobID, ack.TaskID, ack.FilePath, ack.CalledAt}},
					ack,
				)
				return nil
			}

			task, err := client.GetTask(ack.TaskID, wait)
			if err != nil {
				return err
			}
			out.Task(task)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait for the ingest task to finish (e.g. 30s)")

	return cmd
}

// NewPromoteCmd создаёт команду promote.
func NewPromoteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "promote JOB_ID STACK",
		Short: "Copy an ingested file from the data lake into a data store partition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.Promote(args[0], args[1])
			if err != nil {
				return err
			}

			return out.Promote(res)
		},
	}
}
