package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect tasks",
	}

	cmd.AddCommand(newTaskShowCmd(clientFn, outputFn))

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show task state and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(args[0], wait)
			if err != nil {
				return err
			}
			outputFn().Task(task)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait for a terminal state up to this long")

	return cmd
}

// NewJobCmd создаёт группу команд для jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show aggregated job state and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			job, err := clientFn().GetJob(args[0])
			if err != nil {
				return err
			}

			out.Job(job)
			return nil
		},
	})

	return cmd
}
