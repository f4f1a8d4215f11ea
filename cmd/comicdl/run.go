package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run queued tasks in the foreground",
	Long: `Run the tasks left waiting by an earlier process, plus every stopped and
failed task with --all, showing overall progress until they are done.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if all {
			fmt.Printf("Started %d tasks\n", env.ctl.StartAll(ctx))
		}
		env.ctl.Resume()
		if env.ctl.Pending() == 0 {
			fmt.Println("Nothing to run")
			return nil
		}
		return follow(ctx, env)
	},
}

func init() {
	runCmd.Flags().Bool("all", false, "also start stopped and failed tasks")
}
