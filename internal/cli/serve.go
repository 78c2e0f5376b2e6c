package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/bindform/internal/config"
	"github.com/roach88/bindform/internal/dom"
	"github.com/roach88/bindform/internal/engine"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Form   string
	Object string
	Config string
	Addr   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind a form and serve it over HTTP",
		Long: `Bind the first <form> of an HTML file to an object and serve the
binding over HTTP until interrupted.

The object starts from --object (a JSON file) or empty. History goes to
the storage configured by --config; the default keeps it in memory.

Example:
  bindform serve --form contact.html --object contact.json --config bind.yaml
  curl localhost:8080/state`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Form, "form", "", "HTML file holding the form (required)")
	cmd.Flags().StringVar(&opts.Object, "object", "", "JSON file with the initial object")
	cmd.Flags().StringVar(&opts.Config, "config", "", "binding config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	_ = cmd.MarkFlagRequired("form")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	f := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return loadFailure(out, "config", err)
		}
		f = loaded
	}
	cfg, err := f.EngineConfig()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInvalidConfig, "invalid config", err)
	}

	doc, err := loadForm(opts.Form)
	if err != nil {
		return loadFailure(out, "form", err)
	}
	initial, err := loadObject(opts.Object)
	if err != nil {
		return loadFailure(out, "object", err)
	}

	backend, closeStorage, err := f.OpenStorage()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStorage, "failed to open storage", err)
	}
	defer func() {
		if closeErr := closeStorage(); closeErr != nil {
			logger.Error("error closing storage", "error", closeErr)
		}
	}()

	cfg.Storage = backend
	cfg.Logger = logger
	cfg.Hooks = serveHooks(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := engine.NewRegistry(logger).Bind(ctx, doc, initial, cfg)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to bind form", err)
	}
	defer session.Destroy()

	out.VerboseLog("Bound form %s with %d field(s)", session.ID(), len(session.Fields()))
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving form %s on %s. Press Ctrl-C to stop.\n", session.ID(), opts.Addr)
	}

	if err := server.New(session, logger).ListenAndServe(ctx, opts.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return out.Fail(ExitFailure, ErrCodeGeneric, "server error", err)
	}
	return nil
}

// serveHooks logs binding activity. Submissions are accepted and logged.
func serveHooks(logger *slog.Logger) engine.Hooks {
	return engine.Hooks{
		OnFieldChange: func(path string, v ir.Value) {
			logger.Info("field changed", "path", path, "kind", ir.KindOf(v))
		},
		OnValidationFail: func(path string, v ir.Value) {
			logger.Info("validation failed", "path", path)
		},
		SubmissionHandler: func(ctx context.Context, obj ir.Object) (any, error) {
			text, err := ir.CanonicalString(obj)
			if err != nil {
				return nil, err
			}
			logger.Info("form submitted", "object", text)
			return obj, nil
		},
	}
}

func loadFailure(out *OutputFormatter, what string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return out.Fail(ExitCommandError, ErrCodeNotFound, what+" not found", err)
	}
	return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to load "+what, err)
}

func loadForm(path string) (*dom.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return dom.Parse(file)
}

func loadObject(path string) (ir.Object, error) {
	if path == "" {
		return ir.Object{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalObject(data)
}
