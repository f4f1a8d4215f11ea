package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/kerbaras/comicdl/pkg/services"
)

// env is what every command runs against.
type env struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	ctl    *services.Controller
	flush  func()
}

// setup loads the configuration and opens the engine. Interactive commands
// log to a file unless one is configured, so the terminal stays clean.
func setup(cmd *cobra.Command, interactive bool) (*env, error) {
	v := config.New()
	// These keys are nested and do not follow the dash to underscore rule.
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := v.BindPFlag("log.level", f); err != nil {
			return nil, err
		}
	}
	if f := cmd.Flags().Lookup("addr"); f != nil {
		if err := v.BindPFlag("http.addr", f); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(v, configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if interactive && cfg.Log.File == "" {
		cfg.Log.File = cfg.DefaultLogFile()
	}

	logger, flush, err := logging.Open(cfg.Log)
	if err != nil {
		return nil, err
	}

	ctl, err := services.NewController(cmd.Context(), cfg, logger)
	if err != nil {
		flush()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, ctl: ctl, flush: flush}, nil
}

// Close stops running tasks, leaving them queued for the next process.
func (e *env) Close() {
	_ = logging.LogIfError(e.logger, e.ctl.Close(), "Failed to close engine")
	e.flush()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
