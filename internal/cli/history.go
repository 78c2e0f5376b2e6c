package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bindform/internal/config"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
)

// HistoryOptions holds flags shared by the history subcommands.
type HistoryOptions struct {
	*RootOptions
	Config   string
	Database string
	Driver   string
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted form history",
		Long: `Inspect the history a bound form persisted to SQLite.

History blobs are decoded with the codec settings of the config file
(compression, encryption, host entropy), so use the config the form was
bound with. --db overrides the storage path of the config.

Example:
  bindform history forms --db ./history.db
  bindform history list contact --config bind.yaml
  bindform history show contact 2024-01-01T00:00:00.400Z --config bind.yaml`,
	}

	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "binding config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "SQLite driver (sqlite3|sqlite)")

	cmd.AddCommand(&cobra.Command{
		Use:           "forms",
		Short:         "List forms with persisted history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryForms(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list <form-id>",
		Short:         "List the entries of a form",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <form-id> <id|timestamp>",
		Short:         "Print the object recorded by an entry",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(opts, args[0], args[1], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear <form-id>",
		Short:         "Delete the history of a form",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryClear(opts, args[0], cmd)
		},
	})

	return cmd
}

// historyStore is an opened history database.
type historyStore struct {
	file    *config.File
	backend history.Backend
	close   func() error
}

// openHistoryStore resolves the config and flags to an existing SQLite
// database and opens it.
func openHistoryStore(opts *HistoryOptions) (*historyStore, error) {
	f := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		f = loaded
	}
	if opts.Database != "" {
		f.Storage.Path = opts.Database
	}
	if opts.Driver != "" {
		f.Storage.Driver = opts.Driver
	} else if f.Storage.Driver == config.DriverMemory {
		f.Storage.Driver = config.DriverSQLite
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Storage.Driver == config.DriverMemory {
		return nil, errors.New("history commands need a sqlite storage driver")
	}
	if _, err := os.Stat(f.Storage.Path); err != nil {
		return nil, fmt.Errorf("database %s: %w", f.Storage.Path, err)
	}

	backend, closeFn, err := f.OpenStorage()
	if err != nil {
		return nil, err
	}
	return &historyStore{file: f, backend: backend, close: closeFn}, nil
}

func (h *historyStore) open(ctx context.Context, formID string) (*history.Log, error) {
	return h.file.OpenHistory(ctx, h.backend, formID)
}

func withHistoryStore(opts *HistoryOptions, cmd *cobra.Command, fn func(*historyStore, *OutputFormatter) error) error {
	out := formatter(cmd, opts.RootOptions)
	hs, err := openHistoryStore(opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, "database not found", err)
		}
		return out.Fail(ExitCommandError, ErrCodeStorage, "failed to open history", err)
	}
	defer func() {
		if closeErr := hs.close(); closeErr != nil {
			out.VerboseLog("error closing database: %v", closeErr)
		}
	}()
	return fn(hs, out)
}

func runHistoryForms(opts *HistoryOptions, cmd *cobra.Command) error {
	return withHistoryStore(opts, cmd, func(hs *historyStore, out *OutputFormatter) error {
		lister, ok := hs.backend.(history.Lister)
		if !ok {
			return out.Fail(ExitCommandError, ErrCodeStorage, "storage cannot list forms", nil)
		}
		forms, err := history.Forms(cmd.Context(), lister)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStorage, "failed to list forms", err)
		}
		if opts.Format == "json" {
			if forms == nil {
				forms = []string{}
			}
			return out.Success(forms)
		}
		w := cmd.OutOrStdout()
		if len(forms) == 0 {
			fmt.Fprintln(w, "No form history.")
			return nil
		}
		for _, id := range forms {
			fmt.Fprintln(w, id)
		}
		return nil
	})
}

func runHistoryList(opts *HistoryOptions, formID string, cmd *cobra.Command) error {
	return withHistoryStore(opts, cmd, func(hs *historyStore, out *OutputFormatter) error {
		log, err := hs.open(cmd.Context(), formID)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStorage, "failed to load history", err)
		}
		entries := log.Entries()
		if opts.Format == "json" {
			return out.Success(entries)
		}
		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(w, "No history for %s.\n", formID)
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.Timestamp, e.ID, e.Digest)
		}
		return nil
	})
}

func runHistoryShow(opts *HistoryOptions, formID, ref string, cmd *cobra.Command) error {
	return withHistoryStore(opts, cmd, func(hs *historyStore, out *OutputFormatter) error {
		log, err := hs.open(cmd.Context(), formID)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStorage, "failed to load history", err)
		}
		obj, err := log.Restore(ref)
		if errors.Is(err, history.ErrNotFound) {
			return out.Fail(ExitFailure, ErrCodeNotFound, "no such entry", err)
		}
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeGeneric, "failed to decode entry", err)
		}
		if opts.Format == "json" {
			return out.Success(obj)
		}
		text, err := ir.CanonicalString(obj)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	})
}

func runHistoryClear(opts *HistoryOptions, formID string, cmd *cobra.Command) error {
	return withHistoryStore(opts, cmd, func(hs *historyStore, out *OutputFormatter) error {
		log, err := hs.open(cmd.Context(), formID)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStorage, "failed to load history", err)
		}
		n := log.Len()
		if err := log.Clear(cmd.Context()); err != nil {
			return out.Fail(ExitCommandError, ErrCodeStorage, "failed to clear history", err)
		}
		if opts.Format == "json" {
			return out.Success(map[string]any{"form": formID, "cleared": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries for %s.\n", n, formID)
		return nil
	})
}
