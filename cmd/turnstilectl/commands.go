package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"turnstile/internal/modkit/module"
	"turnstile/internal/services/api"
	idomain "turnstile/internal/services/interview/domain"
	imod "turnstile/internal/services/interview/module"
	ivrepo "turnstile/internal/services/interview/repo"
	"turnstile/internal/services/turns/domain"
	turnsrepo "turnstile/internal/services/turns/repo"

	"github.com/spf13/cobra"
)

// withApp opens the runtime without a bus so sweeps flush inline
func withApp(ctx context.Context, fn func(rt *api.Runtime, app *api.App) error) error {
	rt, err := api.Open(ctx, "turnstilectl", false)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return fn(rt, api.Build(rt.Deps(), rt.Service, rt.Store))
}

// lifecycle reads the interview ports api.Build registered
func lifecycle() (idomain.LifecyclePort, error) {
	p, ok := module.PortsAs[imod.Ports]("interview")
	if !ok || p.Lifecycle == nil {
		return nil, fmt.Errorf("interview module not registered")
	}
	return p.Lifecycle, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schemas for buffers, outbox and conversations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := api.Open(ctx, "turnstilectl", false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()
			if rt.Store.PG == nil {
				return fmt.Errorf("migrate needs STORE_BACKEND=pg; the kv backend has no schema")
			}
			if err := turnsrepo.Migrate(ctx, rt.Store.PG); err != nil {
				return err
			}
			if err := ivrepo.Migrate(ctx, rt.Store.PG); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schemas applied")
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	var key domain.BufferKey
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state and pending messages of one buffer key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := key.Validate(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(_ *api.Runtime, app *api.App) error {
				p := app.Turns.TurnPorts().Status
				ks, found, err := p.KeyState(cmd.Context(), key)
				if err != nil {
					return err
				}
				pending, err := p.Pending(cmd.Context(), key)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"found":   found,
					"state":   ks,
					"pending": pending,
				})
			})
		},
	}
	cmd.Flags().StringVar(&key.CandidateID, "candidate", "", "candidate id")
	cmd.Flags().StringVar(&key.ConversationID, "conversation", "", "conversation id")
	cmd.Flags().IntVar(&key.Step, "step", 0, "interview step")
	return cmd
}

func turnsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "turns <conversation>",
		Short: "List pending outbox turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ *api.Runtime, app *api.App) error {
				turns, err := app.Turns.TurnPorts().Outbox.ListTurns(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), turns)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max turns")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flush every due buffer key once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(_ *api.Runtime, app *api.App) error {
				n, err := app.Turns.TurnPorts().Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d due keys\n", n)
				return err
			})
		},
	}
}

func conversationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversation <id>",
		Short: "Show a conversation's step state and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ *api.Runtime, _ *api.App) error {
				lc, err := lifecycle()
				if err != nil {
					return err
				}
				st, err := lc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func endCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "end <conversation>",
		Short: "End a conversation and close its buffer keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ *api.Runtime, _ *api.App) error {
				lc, err := lifecycle()
				if err != nil {
					return err
				}
				st, err := lc.End(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cancelled", "completed | cancelled | timeout | withdrawn")
	return cmd
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check every configured store backend answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := api.Open(cmd.Context(), "turnstilectl", false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()
			if err := rt.Store.Guard(cmd.Context()); err != nil {
				return err
			}
			names := make([]string, 0)
			for name := range rt.Store.Probes() {
				names = append(names, name)
			}
			sort.Strings(names)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", strings.Join(names, ", "))
			return err
		},
	}
}
