package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophpair/internal/flagx"
)

var knownFlags = []string{
	"-d", "-p", "-l", "-peers", "-s", "-pwlen", "-challenge",
	"-t", "-ttl", "-nearby", "-m", "-log", "-logfmt",
}

// Flags lists every flag consumed by LoadConfig, so command parsers can
// strip them with flagx.StripArgs.
func Flags() []string {
	return append([]string{"-c", "-config"}, knownFlags...)
}

// parseFlags overlays cfg with the configuration flags present in args.
// Only knownFlags are considered, see flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.StorePath, "d", cfg.StorePath, "session store path")
	fs.StringVar(&cfg.StorePassphrase, "p", cfg.StorePassphrase, "session store passphrase")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "link listen address")
	peers := fs.String("peers", strings.Join(cfg.Peers, ","), "comma-separated peer endpoints")
	fs.StringVar(&cfg.DeeplinkScheme, "s", cfg.DeeplinkScheme, "deep-link scheme")
	fs.IntVar(&cfg.PasswordLength, "pwlen", cfg.PasswordLength, "pairing password length")
	fs.IntVar(&cfg.ChallengeBytes, "challenge", cfg.ChallengeBytes, "attestation challenge bytes")
	fs.DurationVar(&cfg.PairingTimeout, "t", cfg.PairingTimeout, "pairing attempt timeout")
	fs.DurationVar(&cfg.TokenTTL, "ttl", cfg.TokenTTL, "secondary token lifetime")
	fs.BoolVar(&cfg.SecondaryChannel, "nearby", cfg.SecondaryChannel, "enable secondary token channel")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "logfmt", cfg.LogFormat, "log format")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	cfg.Peers = splitList(*peers)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
