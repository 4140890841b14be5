package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"collabboard/internal/auth"
	"collabboard/internal/discovery"
	"collabboard/internal/logging"
	"collabboard/internal/persist"
	"collabboard/internal/protocol"
	"collabboard/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	server   string
	token    string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "collabboard",
		Short:        "Command line client for a collabboard relay",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", os.Getenv("COLLABBOARD_SERVER"), "relay host:port; found over mDNS when empty")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("COLLABBOARD_TOKEN"), "bearer token for saving and listing boards")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level")

	root.AddCommand(newJoinCmd(g), newBoardsCmd(g), newDiscoverCmd(), newTokenCmd())
	return root
}

func (g *globalFlags) logger() zerolog.Logger {
	return logging.New().Level(g.logLevel).Format("console").Make()
}

// resolve returns the relay address, browsing the local network if none was
// given.
func (g *globalFlags) resolve(ctx context.Context, log zerolog.Logger) (string, error) {
	if g.server != "" {
		return g.server, nil
	}
	log.Info().Msg("looking for a relay on the local network")
	p, err := discovery.First(ctx, 5*time.Second)
	if err != nil {
		return "", err
	}
	log.Info().Str("instance", p.Instance).Str("addr", p.Addr()).Msg("found relay")
	return p.Addr(), nil
}

func newJoinCmd(g *globalFlags) *cobra.Command {
	var (
		room     string
		interval time.Duration
		st       style
	)
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and draw from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := g.logger()
			addr, err := g.resolve(ctx, log)
			if err != nil {
				return err
			}
			bridge, err := persist.NewHTTPBridge("http://"+addr, g.token)
			if err != nil {
				return err
			}
			if g.token == "" {
				// saving needs a token; loading does not
				interval = 0
				log.Warn().Msg("no token given, autosave disabled")
			}
			out := cmd.OutOrStdout()
			cfg := session.Config{
				URL:          "ws://" + addr + "/ws",
				RoomID:       room,
				Token:        g.token,
				SaveInterval: interval,
			}
			sess := session.New(cfg,
				session.WithBridge(bridge),
				session.WithLogger(logging.Component(log, "session")),
				session.WithRemoteHook(func(m protocol.Message) {
					fmt.Fprintf(out, "peer %s\n", m.Type)
				}),
			)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				readCommands(ctx, sess, st, cmd.InOrStdin(), out)
				// let queued messages reach the relay
				select {
				case <-time.After(250 * time.Millisecond):
				case <-ctx.Done():
				}
				cancel()
			}()
			return runWithReconnect(ctx, sess, log)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room identifier")
	cmd.Flags().DurationVar(&interval, "save-interval", 5*time.Second, "autosave interval")
	cmd.Flags().StringVar(&st.Color, "color", "#000000", "stroke color")
	cmd.Flags().StringVar(&st.Fill, "fill", "transparent", "shape fill color")
	cmd.Flags().Float64Var(&st.Width, "width", 4, "stroke width")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

// runWithReconnect keeps the session connected until ctx is done.
func runWithReconnect(ctx context.Context, sess *session.Session, log zerolog.Logger) error {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	return backoff.RetryNotify(func() error {
		started := time.Now()
		err := sess.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > time.Minute {
			eb.Reset()
		}
		if err == nil {
			err = session.ErrDisconnected
		}
		return err
	}, backoff.WithContext(eb, ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Msg("connection lost")
	})
}

func readCommands(ctx context.Context, sess *session.Session, st style, in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		var (
			msg string
			err error
		)
		if doErr := sess.Do(ctx, func(e *session.Editor) { msg, err = execLine(e, st, line) }); doErr != nil {
			return
		}
		switch {
		case errors.Is(err, errQuit):
			return
		case err != nil:
			fmt.Fprintln(out, "error:", err)
		case msg != "":
			fmt.Fprintln(out, msg)
		}
	}
}

func newBoardsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List your saved boards, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			addr, err := g.resolve(ctx, g.logger())
			if err != nil {
				return err
			}
			bridge, err := persist.NewHTTPBridge("http://"+addr, g.token)
			if err != nil {
				return err
			}
			boards, err := bridge.List(ctx)
			if err != nil {
				return err
			}
			for _, b := range boards {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.RoomID, b.Updated.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List relays announced on the local network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			peers, err := discovery.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				return discovery.ErrNotFound
			}
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Instance, p.Addr())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for announcements")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret string
		id     string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the relay secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return errors.New("a secret is required (--secret or JWT_SECRET)")
			}
			tok, err := auth.NewJWTGate(secret).Issue(auth.Identity{ID: id, Username: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
