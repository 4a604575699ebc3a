package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/gophpair/internal/app"
	"github.com/dmitrijs2005/gophpair/internal/models"
	"github.com/dmitrijs2005/gophpair/internal/pairing"
)

type tokenFlags struct {
	token string
	wait  time.Duration
}

func (f *tokenFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", "hex secondary token to relay once the peer is validated")
	cmd.Flags().DurationVar(&f.wait, "wait", 10*time.Second, "how long to wait for the peer's token")
}

func (c *CLI) hostCmd() *cobra.Command {
	var tf tokenFlags
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start a pairing and print the password link to share",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tf.decode()
			if err != nil {
				return err
			}
			return c.pair(cmd.Context(), func(ctx context.Context, a *app.App) error {
				pw, link, err := a.Pairing.Host(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "password: %s\nlink:     %s\n", pw.Value, link)
				return nil
			}, token, tf.wait)
		},
	}
	tf.register(cmd)
	return cmd
}

func (c *CLI) joinCmd() *cobra.Command {
	var tf tokenFlags
	cmd := &cobra.Command{
		Use:   "join [link]",
		Short: "Join a pairing with the link shared by the host",
		Long: `Join a pairing with the link shared by the host.

Without a link argument the device starts listening at once and reads the
link from standard input, so a host key that arrives early is kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tf.decode()
			if err != nil {
				return err
			}
			return c.pair(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					return a.Pairing.JoinLink(ctx, args[0])
				}
				if err := a.Pairing.AwaitPassword(ctx); err != nil {
					return err
				}
				fmt.Fprint(c.errOut, "pairing link: ")
				link, err := readLink(ctx, linkInput)
				if err != nil {
					return err
				}
				return a.Pairing.JoinLink(ctx, link)
			}, token, tf.wait)
		},
	}
	tf.register(cmd)
	return cmd
}

func (f *tokenFlags) decode() (models.SecondaryToken, error) {
	if f.token == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(f.token)
	if err != nil {
		return nil, fmt.Errorf("token must be hex: %w", err)
	}
	return models.SecondaryToken(b), nil
}

// pair runs start, waits for the peer to be validated and then relays token.
func (c *CLI) pair(ctx context.Context, start func(context.Context, *app.App) error, token models.SecondaryToken, wait time.Duration) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx, func(ctx context.Context) error {
		if err := start(ctx, a); err != nil {
			return err
		}
		st, err := a.WaitValidated(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "paired with %s\n", st.Peer.Endpoint())
		return c.relay(ctx, a, st, token, wait)
	})
}

func (c *CLI) relay(ctx context.Context, a *app.App, st pairing.Status, token models.SecondaryToken, wait time.Duration) error {
	if token == nil {
		return nil
	}
	if !a.Relay.Enabled() {
		fmt.Fprintln(c.out, "secondary channel disabled, token not relayed")
		return nil
	}
	if err := a.Relay.SendToken(ctx, st.Peer, token); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "token sent")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case got := <-a.Relay.Tokens():
		fmt.Fprintf(c.out, "peer token: %s\n", hex.EncodeToString(got))
	case <-timer.C:
		fmt.Fprintln(c.out, "no token from peer")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
