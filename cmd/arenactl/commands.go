package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/arenaclient"
	"github.com/park285/cheese-arena/internal/combat"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	server  string
	wsURL   string
	timeout time.Duration
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "arenactl",
		Short:         "Drive and watch matches on an arena server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("ARENA_URL", "http://localhost:8080"), "match server base URL")
	root.PersistentFlags().StringVar(&g.wsURL, "ws-url", envOr("ARENA_WS_URL", "ws://localhost:8081"), "WebSocket listener base URL")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 8*time.Second, "per-request timeout")

	root.AddCommand(
		createCmd(g),
		joinCmd(g),
		actCmd(g),
		getCmd(g),
		watchCmd(g),
	)
	return root
}

func (g *globalFlags) client() *arenaclient.Client {
	// one id per invocation so server logs can be correlated with this run
	rid := uuid.NewString()
	return arenaclient.NewClient(g.server,
		arenaclient.WithTimeout(g.timeout),
		arenaclient.WithWebSocketURL(g.wsURL),
		arenaclient.WithHeaderProvider(func() map[string]string {
			return map[string]string{"X-Request-ID": rid}
		}),
	)
}

func createCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <player-name>",
		Short: "Create a match and take seat p1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.client().Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match %s created, you are p1\n", id)
			return nil
		},
	}
}

func joinCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <match-id> <player-name>",
		Short: "Join a waiting match as p2",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, seat, err := g.client().Join(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined match %s as %s\n", id, seat)
			return nil
		},
	}
}

func actCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "act <match-id> <p1|p2> <PUNCH|KICK|BLOCK|HEAL>",
		Short: "Submit one action for a seat",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			player, ok := match.ParsePlayerID(strings.ToLower(args[1]))
			if !ok {
				return fmt.Errorf("invalid player %q", args[1])
			}
			action, ok := combat.ParseAction(strings.ToUpper(args[2]))
			if !ok {
				return fmt.Errorf("invalid action %q", args[2])
			}
			st, err := g.client().Act(cmd.Context(), args[0], player, action)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func getCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "get <match-id>",
		Short: "Print the current state of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printSummary(cmd.OutOrStdout(), st)
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the raw state")
	return c
}

func watchCmd(g *globalFlags) *cobra.Command {
	var useWS, asJSON bool
	var reconnects int
	c := &cobra.Command{
		Use:   "watch <match-id>",
		Short: "Stream state changes until the match finishes or you interrupt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			seen := 0
			fn := func(st match.State) bool {
				if asJSON {
					_ = printJSON(out, st)
				} else {
					// log lines are append-only, so print only the new ones
					for _, line := range st.Log[min(seen, len(st.Log)):] {
						fmt.Fprintln(out, line)
					}
					seen = len(st.Log)
				}
				return st.Status != match.StatusFinished
			}
			transport := arenaclient.TransportSSE
			if useWS {
				transport = arenaclient.TransportWS
			}
			err := g.client().Follow(ctx, args[0], transport, reconnects, fn, func(attempt int, err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "stream dropped (%v), reconnecting (%d/%d)\n", err, attempt, reconnects)
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	c.Flags().BoolVar(&useWS, "ws", false, "use the WebSocket listener instead of SSE")
	c.Flags().BoolVar(&asJSON, "json", false, "print each snapshot as JSON")
	c.Flags().IntVar(&reconnects, "reconnect", 5, "consecutive reconnect attempts before giving up")
	return c
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, st match.State) {
	fmt.Fprintf(w, "match %s  status=%s  turn=%s\n", st.MatchID, st.Status, st.Turn)
	fmt.Fprintf(w, "  p1 %-12s hp=%2d block=%d\n", st.Players.P1.Name, st.Players.P1.HP, st.Players.P1.Block)
	if p2 := st.Players.P2; p2 != nil {
		fmt.Fprintf(w, "  p2 %-12s hp=%2d block=%d\n", p2.Name, p2.HP, p2.Block)
	} else {
		fmt.Fprintln(w, "  p2 (waiting)")
	}
	if st.Winner != nil {
		fmt.Fprintf(w, "  winner: %s\n", *st.Winner)
	}
	if n := len(st.Log); n > 0 {
		fmt.Fprintf(w, "  last: %s\n", st.Log[n-1])
	}
}
