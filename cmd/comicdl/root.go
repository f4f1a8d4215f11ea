package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kerbaras/comicdl/pkg/app"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "comicdl",
	Short: "Queue and download comics from the terminal",
	Long:  "Resolve comic pages into download tasks, run them with bounded concurrency and export the results as EPUB",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		env.ctl.Resume()
		return app.NewApp(env.ctl).Run(ctx)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default searches ./config.yaml and the data dir)")
	flags.String("data-dir", "", "directory for the task database, cache and logs")
	flags.String("download-dir", "", "directory tasks download into")
	flags.String("export-dir", "", "directory EPUB files are written to")
	flags.Int("max-active-tasks", 1, "tasks downloading at once")
	flags.Int("item-concurrency", 10, "images in flight per task")
	flags.Bool("ascii-paths", false, "transliterate file and directory names to ASCII")
	flags.String("device", "", "fit pages to a reader profile, e.g. kindle-paperwhite")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
