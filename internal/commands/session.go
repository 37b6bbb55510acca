package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/picker/internal/backend"
	"github.com/cleared-dev/picker/internal/config"
	"github.com/cleared-dev/picker/internal/filter"
	"github.com/cleared-dev/picker/internal/logger"
	"github.com/cleared-dev/picker/internal/reconcile"
	"github.com/cleared-dev/picker/internal/session"
)

func newSessionCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start an interactive transaction picking session",
		Long: `Start an interactive session against the statement backend.

Each input line is one command: upload, filter, apply, list, toggle,
selected, add, submit, export, status, help or quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if !cmd.Flags().Changed("config") {
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					path = ""
				}
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			sess, err := newSession(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runShell(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), sess)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.FileName, "path to picker.yaml")

	return cmd
}

// newSession wires a Session to the HTTP backend described by cfg. Notices
// go to out, logs to logOut.
func newSession(cfg *config.Config, out, logOut io.Writer) (*session.Session, error) {
	log, err := logger.New(logOut, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	datePolicy, err := filter.ParseDatePolicy(cfg.Filter.DatePolicy)
	if err != nil {
		return nil, err
	}
	entryPolicy, err := reconcile.ParsePolicy(cfg.ManualEntry.Policy)
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(cfg.Backend.BaseURL, timeout)
	log.Debug("session configured",
		"base_url", cfg.Backend.BaseURL,
		"timeout", timeout,
		"date_policy", datePolicy,
		"entry_policy", entryPolicy,
	)

	return session.New(
		session.Services{Uploader: client, Persister: client, Submitter: client},
		session.Options{
			DatePolicy:  datePolicy,
			EntryPolicy: entryPolicy,
			Notifier:    printNotifier{w: out},
			Logger:      log,
		},
	), nil
}

type printNotifier struct {
	w io.Writer
}

func (p printNotifier) Notify(n session.Notice) {
	fmt.Fprintf(p.w, "[%s] %s\n", n.Level, n.Message)
}
