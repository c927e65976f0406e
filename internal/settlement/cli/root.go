// Package cli implementa o settlectl, ferramenta de operação da liquidação:
// deriva chaves, liquida rounds manualmente, reconcilia créditos e confere registros.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/radieske/draw-settlement/internal/settlement/app"
)

// Connector monta o pipeline sob demanda; close libera conexões.
type Connector func(ctx context.Context) (s *app.Settlement, close func(), err error)

// RootOptions guarda as flags globais.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	connect Connector
	now     func() time.Time
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand cria o comando raiz do settlectl.
func NewRootCommand(connect Connector) *cobra.Command {
	return newRoot(connect, time.Now)
}

func newRoot(connect Connector, now func() time.Time) *cobra.Command {
	opts := &RootOptions{connect: connect, now: now}

	cmd := &cobra.Command{
		Use:   "settlectl",
		Short: "Operate draw round settlement",
		Long:  "Settle draw rounds, reconcile pending wallet credits and inspect result records.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))

	return cmd
}

func (o *RootOptions) settlement(ctx context.Context) (*app.Settlement, func(), error) {
	if o.connect == nil {
		return nil, nil, fmt.Errorf("no settlement backend configured")
	}
	s, closeFn, err := o.connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return s, closeFn, nil
}

// emit escreve v como JSON ou chama text para a saída legível.
func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
