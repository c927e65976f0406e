package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// roundFlags identifica um round por --key ou por --game/--round[/--date].
type roundFlags struct {
	key   string
	game  string
	round int
	date  string
}

func (f *roundFlags) register(cmd *cobra.Command, withKey bool) {
	if withKey {
		cmd.Flags().StringVar(&f.key, "key", "", "round key (gameId_YYYY-MM-DD_roundNumber)")
	}
	cmd.Flags().StringVar(&f.game, "game", "", "game id")
	cmd.Flags().IntVar(&f.round, "round", 0, "round number")
	cmd.Flags().StringVar(&f.date, "date", "", "round date in IST (YYYY-MM-DD), defaults to today")
}

func (f *roundFlags) resolve(now time.Time) (round.Key, error) {
	if f.key != "" {
		return round.ParseKey(f.key)
	}
	if f.game == "" || f.round <= 0 {
		return round.Key{}, errors.New("either --key or --game and --round are required")
	}
	k := round.NewKey(f.game, f.round, now)
	if f.date != "" {
		if _, err := time.ParseInLocation("2006-01-02", f.date, round.IST); err != nil {
			return round.Key{}, fmt.Errorf("invalid --date %q: %w", f.date, err)
		}
		k.Date = f.date
	}
	return k, nil
}

// NewKeyCommand imprime a chave de idempotência de um round.
func NewKeyCommand(opts *RootOptions) *cobra.Command {
	var rf roundFlags
	cmd := &cobra.Command{
		Use:          "key",
		Short:        "Print the idempotency key of a round",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rf.resolve(opts.now())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string]any{
				"key":         k.String(),
				"gameId":      k.GameID,
				"date":        k.Date,
				"roundNumber": k.RoundNumber,
			}, func(w io.Writer) { fmt.Fprintln(w, k.String()) })
		},
	}
	rf.register(cmd, false)
	return cmd
}

// NewSettleCommand executa o pipeline completo para um round.
func NewSettleCommand(opts *RootOptions) *cobra.Command {
	var sub pipeline.Submission
	cmd := &cobra.Command{
		Use:          "settle",
		Short:        "Record a round result and settle its bets",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := opts.settlement(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := s.Pipeline.Run(cmd.Context(), sub)
			if err := opts.emit(cmd.OutOrStdout(), out, func(w io.Writer) { printOutcome(w, out, opts.Verbose) }); err != nil {
				return err
			}
			if !out.Success {
				return fmt.Errorf("settlement failed at %s (%s): %s", out.Stage, out.Kind, out.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sub.GameID, "game", "", "game id")
	cmd.Flags().IntVar(&sub.RoundNumber, "round", 0, "round number")
	cmd.Flags().StringVar(&sub.Result, "result", "", "three digit result")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("round")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

func printOutcome(w io.Writer, out pipeline.Outcome, verbose bool) {
	status := "OK"
	if !out.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s %s: %s\n", status, out.Key, out.Message)
	if out.Error != "" {
		fmt.Fprintf(w, "  error: %s (%s at %s)\n", out.Error, out.Kind, out.Stage)
	}
	fmt.Fprintf(w, "  bets processed=%d skipped=%d\n", out.Processed, out.Skipped)
	fmt.Fprintf(w, "  credits applied=%d failed=%d total=%s\n", out.Credits.Applied, out.Credits.Failed, out.Credits.Credited.String())
	if verbose {
		fmt.Fprintf(w, "  trail: %v\n", out.Trail)
		fmt.Fprintf(w, "  duration: %s\n", out.Duration)
	}
}

// NewReconcileCommand credita vencedores que ficaram sem crédito.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var rf roundFlags
	cmd := &cobra.Command{
		Use:          "reconcile",
		Short:        "Credit winning bets of a round that were left uncredited",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rf.resolve(opts.now())
			if err != nil {
				return err
			}
			s, closeFn, err := opts.settlement(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := s.Ledger.Reconcile(cmd.Context(), k)
			if err != nil {
				return err
			}
			err = opts.emit(cmd.OutOrStdout(), map[string]any{
				"key":      k.String(),
				"applied":  rep.Applied,
				"failed":   rep.Failed,
				"credited": rep.Credited.String(),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "%s: applied=%d failed=%d credited=%s\n", k, rep.Applied, rep.Failed, rep.Credited.String())
			})
			if err != nil {
				return err
			}
			if !rep.Complete() {
				return fmt.Errorf("%d credit(s) still pending for %s", rep.Failed, k)
			}
			return nil
		},
	}
	rf.register(cmd, true)
	return cmd
}

// NewVerifyCommand confere se o registro gravado bate com o resultado esperado.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	var (
		rf       roundFlags
		expected string
	)
	cmd := &cobra.Command{
		Use:          "verify",
		Short:        "Check that a round is completed with the expected result",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rf.resolve(opts.now())
			if err != nil {
				return err
			}
			res, err := round.ParseResult(expected)
			if err != nil {
				return err
			}
			s, closeFn, err := opts.settlement(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ok, err := s.Recorder.Verify(cmd.Context(), k, res)
			if err != nil {
				return err
			}
			err = opts.emit(cmd.OutOrStdout(), map[string]any{"key": k.String(), "verified": ok},
				func(w io.Writer) {
					if ok {
						fmt.Fprintf(w, "%s: verified\n", k)
					} else {
						fmt.Fprintf(w, "%s: mismatch\n", k)
					}
				})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("verification failed for %s", k)
			}
			return nil
		},
	}
	rf.register(cmd, true)
	cmd.Flags().StringVar(&expected, "result", "", "expected three digit result")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

// NewShowCommand mostra o registro de resultado de um round.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var rf roundFlags
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Show the stored result record of a round",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rf.resolve(opts.now())
			if err != nil {
				return err
			}
			s, closeFn, err := opts.settlement(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rr, found, err := s.Recorder.Get(cmd.Context(), k)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s: %w", k, domain.ErrNotFound)
			}
			return opts.emit(cmd.OutOrStdout(), rr, func(w io.Writer) {
				fmt.Fprintf(w, "%s result=%s status=%s attempts=%d\n", rr.ID, rr.Result, rr.Status, rr.AttemptCount)
				if rr.ErrorMessage != "" {
					fmt.Fprintf(w, "  last error: %s\n", rr.ErrorMessage)
				}
			})
		},
	}
	rf.register(cmd, true)
	return cmd
}
