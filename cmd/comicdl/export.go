package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kerbaras/comicdl/pkg/app/styles"
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Compile the downloaded images of a task into an EPUB",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		outDir, _ := cmd.Flags().GetString("output")

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		path, err := env.ctl.Export(cmd.Context(), id, outDir)
		if err != nil {
			return err
		}
		fmt.Println(styles.StatusCompleted.Render("✓ EPUB created: " + path))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output directory (default: export_dir)")
}
