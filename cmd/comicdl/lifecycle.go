package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kerbaras/comicdl/pkg/app/styles"
)

var startCmd = &cobra.Command{
	Use:   "start [id...]",
	Short: "Start tasks and wait for them",
	Long: `Start the given tasks, or every stopped and failed one with --all, and
follow them until they finish. With --detach the tasks are only queued and
run by the next 'comicdl run', 'comicdl serve' or the dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		detach, _ := cmd.Flags().GetBool("detach")
		ids, err := parseIDs(args, all)
		if err != nil {
			return err
		}

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if detach {
			if all {
				fmt.Printf("Queued %d tasks\n", env.ctl.QueueAll(ctx))
				return nil
			}
			return each(ctx, ids, "Queued", env.ctl.Queue)
		}
		if all {
			fmt.Printf("Started %d tasks\n", env.ctl.StartAll(ctx))
		} else if err := each(ctx, ids, "Started", env.ctl.Start); err != nil {
			return err
		}
		env.ctl.Resume()
		return follow(ctx, env)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [id...]",
	Short: "Pause tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		waiting, _ := cmd.Flags().GetBool("waiting")
		ids, err := parseIDs(args, all || waiting)
		if err != nil {
			return err
		}

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		switch {
		case all:
			fmt.Printf("Paused %d tasks\n", env.ctl.PauseAll(ctx))
		case waiting:
			fmt.Printf("Paused %d waiting tasks\n", env.ctl.PauseWaiting(ctx))
		default:
			return each(ctx, ids, "Paused", env.ctl.Pause)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete tasks that are not downloading",
	Long:  "Delete task records. Downloaded files are kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		ids, err := parseIDs(args, all)
		if err != nil {
			return err
		}

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		if all {
			fmt.Printf("Deleted %d tasks\n", env.ctl.DeleteAll(ctx))
			return nil
		}
		return each(ctx, ids, "Deleted", env.ctl.Delete)
	},
}

func init() {
	startCmd.Flags().Bool("all", false, "start every stopped or failed task")
	startCmd.Flags().Bool("detach", false, "queue the tasks without waiting for them")
	pauseCmd.Flags().Bool("all", false, "pause every downloading or waiting task")
	pauseCmd.Flags().Bool("waiting", false, "pause only waiting tasks")
	deleteCmd.Flags().Bool("all", false, "delete every task that is not downloading")
}

func parseIDs(args []string, all bool) ([]int64, error) {
	if all {
		if len(args) > 0 {
			return nil, errors.New("task ids cannot be combined with a bulk flag")
		}
		return nil, nil
	}
	if len(args) == 0 {
		return nil, errors.New("at least one task id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// each applies op to every id, reporting failures and carrying on.
func each(ctx context.Context, ids []int64, verb string, op func(context.Context, int64) error) error {
	var errs []error
	for _, id := range ids {
		if err := op(ctx, id); err != nil {
			fmt.Println(styles.StatusError.Render(fmt.Sprintf("✗ Task #%d: %v", id, err)))
			errs = append(errs, err)
			continue
		}
		fmt.Printf("%s task #%d\n", verb, id)
	}
	return errors.Join(errs...)
}
