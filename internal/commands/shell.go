package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/picker/internal/export"
	"github.com/cleared-dev/picker/internal/filter"
	"github.com/cleared-dev/picker/internal/model"
	"github.com/cleared-dev/picker/internal/reconcile"
	"github.com/cleared-dev/picker/internal/render"
	"github.com/cleared-dev/picker/internal/session"
)

const prompt = "picker> "

var errQuit = errors.New("quit")

type shell struct {
	sess *session.Session
	out  io.Writer
}

// runShell reads commands from in until EOF, quit or ctx is done. Command
// errors are printed and the loop continues.
func runShell(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session) error {
	sh := &shell{sess: sess, out: out}

	readCtx, stop := context.WithCancel(ctx)
	defer stop()

	lines := make(chan string)
	var readErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr = sc.Err()
	}()

	for {
		fmt.Fprint(out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				if readErr != nil {
					return fmt.Errorf("reading input: %w", readErr)
				}
				return nil
			}
			err := sh.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// exec runs one input line against a fresh command tree.
func (sh *shell) exec(ctx context.Context, line string) error {
	words, err := splitLine(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}

	root := sh.commandTree()
	root.SetArgs(words)
	root.SetOut(sh.out)
	root.SetErr(sh.out)
	return root.ExecuteContext(ctx)
}

func (sh *shell) commandTree() *cobra.Command {
	root := &cobra.Command{
		Use:           "picker",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(
		sh.uploadCommand(),
		sh.filterCommand(),
		sh.applyCommand(),
		sh.listCommand(),
		sh.toggleCommand(),
		sh.selectedCommand(),
		sh.addCommand(),
		sh.submitCommand(),
		sh.exportCommand(),
		sh.statusCommand(),
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			Short:   "End the session",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return errQuit
			},
		},
	)
	return root
}

func (sh *shell) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a statement and replace all transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if err := sh.sess.UploadFile(cmd.Context(), filepath.Base(args[0]), data); err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "%d transaction(s) loaded, %d shown\n",
				len(sh.sess.Transactions()), len(sh.sess.View()))
			return nil
		},
	}
}

func (sh *shell) filterCommand() *cobra.Command {
	var start, end, typ string

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Set filter criteria; no flags clears them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var c filter.Criteria
			if start != "" {
				t, err := model.ParseDate(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				c.Start = &t
			}
			if end != "" {
				t, err := model.ParseDate(end)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				c.End = &t
			}
			if typ != "" && !strings.EqualFold(typ, "all") {
				cd, err := model.ParseCreditDebit(typ)
				if err != nil {
					return fmt.Errorf("--type: %w", err)
				}
				c.Type = cd
			}
			if err := sh.sess.SetFilterCriteria(c); err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "filter: %s (run apply to update the list)\n", describeCriteria(sh.sess.Criteria()))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "earliest date, D/M/YYYY")
	cmd.Flags().StringVar(&end, "end", "", "latest date, D/M/YYYY")
	cmd.Flags().StringVar(&typ, "type", "", "CR, DR or all")

	return cmd
}

func (sh *shell) applyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply the filter criteria to all transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sh.sess.ApplyFilters(); err != nil {
				return err
			}
			render.Table(sh.out, sh.sess.View(), sh.sess.IsSelected)
			return nil
		},
	}
}

func (sh *shell) listCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the filtered transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txns := sh.sess.View()
			if all {
				txns = sh.sess.Transactions()
			}
			render.Table(sh.out, txns, sh.sess.IsSelected)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "ignore the filter")

	return cmd
}

func (sh *shell) toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>...",
		Short: "Select or deselect transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("invalid id %q", a)
				}
				ids = append(ids, id)
			}
			for _, id := range ids {
				verb := "deselected"
				if sh.sess.ToggleSelection(id) {
					verb = "selected"
				}
				if t, ok := sh.sess.Transaction(id); ok {
					fmt.Fprintf(sh.out, "%s %d (%s)\n", verb, id, t.Description)
				} else {
					fmt.Fprintf(sh.out, "%s %d (not in the current statement)\n", verb, id)
				}
			}
			return nil
		},
	}
}

func (sh *shell) selectedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selected",
		Short: "Show the selected transactions that would be submitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			picked := sh.sess.SelectedWithinView()
			render.Table(sh.out, picked, nil)
			if hidden := len(sh.sess.Selected()) - len(picked); hidden > 0 {
				fmt.Fprintf(sh.out, "%d selected transaction(s) hidden by the filter\n", hidden)
			}
			return nil
		},
	}
}

func (sh *shell) addCommand() *cobra.Command {
	var entry reconcile.ManualEntry

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sh.sess.SubmitManualEntry(cmd.Context(), entry)
			if err != nil {
				if id != 0 {
					fmt.Fprintf(sh.out, "transaction %d kept locally\n", id)
				}
				return err
			}
			fmt.Fprintf(sh.out, "added transaction %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&entry.Date, "date", "", "date, D/M/YYYY")
	cmd.Flags().StringVar(&entry.Description, "desc", "", "description")
	cmd.Flags().StringVar(&entry.CreditDebit, "type", "", "Credit or Debit")
	cmd.Flags().StringVar(&entry.Amount, "amount", "", "amount, e.g. 12.50")

	return cmd
}

func (sh *shell) submitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Submit the selected transactions in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := sh.sess.SubmitSelected(cmd.Context())
			if errors.Is(err, session.ErrNothingSelected) {
				return nil
			}
			return err
		},
	}
}

func (sh *shell) exportCommand() *cobra.Command {
	var selected bool

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the filtered transactions to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txns := sh.sess.View()
			if selected {
				txns = sh.sess.SelectedWithinView()
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			if err := export.WriteTransactions(f, txns); err != nil {
				f.Close()
				return fmt.Errorf("exporting to %s: %w", args[0], err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", args[0], err)
			}
			fmt.Fprintf(sh.out, "wrote %d transaction(s) to %s\n", len(txns), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&selected, "selected", false, "only the selected transactions")

	return cmd
}

func (sh *shell) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied := "none"
			if c, ok := sh.sess.AppliedCriteria(); ok {
				applied = describeCriteria(c)
			}
			fmt.Fprintf(sh.out, "state:        %s\n", sh.sess.State())
			fmt.Fprintf(sh.out, "transactions: %d\n", len(sh.sess.Transactions()))
			fmt.Fprintf(sh.out, "shown:        %d\n", len(sh.sess.View()))
			fmt.Fprintf(sh.out, "selected:     %d (%d shown)\n", len(sh.sess.Selected()), len(sh.sess.SelectedWithinView()))
			fmt.Fprintf(sh.out, "filter:       %s\n", describeCriteria(sh.sess.Criteria()))
			fmt.Fprintf(sh.out, "applied:      %s\n", applied)
			return nil
		},
	}
}

func describeCriteria(c filter.Criteria) string {
	if c.IsZero() {
		return "none"
	}
	var parts []string
	if c.Start != nil {
		parts = append(parts, "from "+model.FormatDate(*c.Start))
	}
	if c.End != nil {
		parts = append(parts, "to "+model.FormatDate(*c.End))
	}
	if c.Type != "" {
		parts = append(parts, "type "+string(c.Type))
	}
	return strings.Join(parts, ", ")
}
