// Package cli implements the pairctl command line: hosting and joining a
// colocated pairing, relaying a secondary token once the peer is
// validated, and inspecting or deleting the stored session.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/gophpair/internal/app"
	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/config"
	"github.com/dmitrijs2005/gophpair/internal/flagx"
	"github.com/dmitrijs2005/gophpair/internal/logging"
)

type CLI struct {
	config  *config.Config
	out     io.Writer
	errOut  io.Writer
	appOpts []app.Option
}

func New(cfg *config.Config, out, errOut io.Writer, opts ...app.Option) *CLI {
	return &CLI{config: cfg, out: out, errOut: errOut, appOpts: opts}
}

// Execute loads the configuration from args and runs the selected command.
// Configuration flags are removed before cobra sees the arguments.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	return New(cfg, out, errOut).Run(ctx, flagx.StripArgs(args, config.Flags()))
}

func (c *CLI) Run(ctx context.Context, args []string) error {
	root := c.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *CLI) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pairctl",
		Short:         "Pair two nearby devices with a short out-of-band password",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `pairctl establishes a trusted two-party session with a nearby device.

Configuration flags (also settable from a JSON file given with -c):
  -d path        session store path
  -p secret      store passphrase (prompted when empty)
  -l addr        link listen address
  -peers list    comma-separated peer link addresses
  -s scheme      deep-link scheme
  -pwlen n       pairing password length
  -challenge n   attestation challenge bytes
  -t dur         pairing timeout
  -ttl dur       secondary token lifetime
  -nearby=bool   enable the secondary token channel
  -m addr        metrics listen address
  -log level     log level
  -logfmt fmt    log format (text or json)`,
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(c.hostCmd(), c.joinCmd(), c.statusCmd(), c.deleteCmd())
	return root
}

// open builds the app for one command. The passphrase is wiped once the
// store has derived its key.
func (c *CLI) open(ctx context.Context) (*app.App, error) {
	logger, err := logging.New(c.errOut, c.config.LogLevel, c.config.LogFormat)
	if err != nil {
		return nil, err
	}
	pass, err := getPassphrase(c.config.StorePassphrase, c.errOut)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pass)

	return app.NewApp(ctx, c.config, pass, logger, c.appOpts...)
}
