package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kerbaras/comicdl/pkg/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine behind an HTTP API",
	Long:  "Serve the task API and a server-sent event stream of progress while running queued tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")

		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		options := []api.RouterOption{
			api.DefaultTechOptions(),
			api.WithLogger(env.logger),
			api.WithTaskHandlers(api.NewHandlers(env.ctl, env.logger)),
		}
		if debug {
			options = append(options, api.WithDebugHandler())
		}
		handler := api.NewHandler("/", options...)

		env.ctl.Resume()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return api.RunServer(gctx, env.cfg.HTTPAddr, env.logger, handler)
		})
		g.Go(func() error {
			logProgress(gctx, env)
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: http.addr)")
	serveCmd.Flags().Bool("debug", false, "mount pprof handlers under /debug")
}

// logProgress records task transitions until ctx ends.
func logProgress(ctx context.Context, env *env) {
	events, cancel := env.ctl.Subscribe(256)
	defer cancel()
	logger := env.logger.With("component", "progress")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logger.Debugw("Task progress",
				"task", ev.TaskID,
				"status", ev.Status,
				"done", ev.DoneCount,
				"total", ev.TotalCount,
				"errors", len(ev.Errors),
			)
		}
	}
}
