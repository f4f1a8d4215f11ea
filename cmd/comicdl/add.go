package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Create download tasks for a comic or chapter page",
	Long: `Resolve a comic page into one task per category (or only --kind), or a
chapter page into a single task. Pages that already have a task for the
same kind are reported and left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		author, _ := cmd.Flags().GetString("author")
		partial, _ := cmd.Flags().GetBool("allow-partial")
		start, _ := cmd.Flags().GetBool("start")

		kind, err := data.ParseKind(kindFlag)
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

		res, err := env.ctl.Add(ctx, services.AddRequest{
			URL:          args[0],
			Kind:         kind,
			Author:       author,
			AllowPartial: partial,
			Start:        start,
		})
		if err != nil {
			return err
		}

		for _, t := range res.Created {
			fmt.Println(styles.StatusCompleted.Render(
				fmt.Sprintf("✓ Task #%d: %s (%s, %d items)", t.ID, t.ComicName, t.Kind, t.TotalCount)))
		}
		for _, t := range res.Existing {
			fmt.Println(styles.MutedStyle.Render(
				fmt.Sprintf("• Task #%d: %s (%s) already exists", t.ID, t.ComicName, t.Kind)))
		}
		for _, label := range res.Skipped {
			fmt.Println(styles.StatusWaiting.Render(
				fmt.Sprintf("! Category %q matches no task kind and was skipped", label)))
		}

		if !start || len(res.Created) == 0 {
			return nil
		}
		return follow(ctx, env)
	},
}

func init() {
	addCmd.Flags().StringP("kind", "k", string(data.KindAll), "what to download: all, volumes, chapters, extras or current")
	addCmd.Flags().StringP("author", "a", "", "author name used in the download path")
	addCmd.Flags().Bool("allow-partial", false, "create tasks even if some chapters could not be resolved")
	addCmd.Flags().BoolP("start", "s", false, "start the new tasks and wait for them")
}
