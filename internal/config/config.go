package config

import "time"

// Config holds runtime settings for a pairing device.
type Config struct {
	StorePath       string
	StorePassphrase string
	ListenAddr      string
	Peers           []string
	DeeplinkScheme  string

	// Security parameters for generated passwords and attestation challenges.
	PasswordLength int
	ChallengeBytes int

	PairingTimeout   time.Duration
	TokenTTL         time.Duration
	SecondaryChannel bool

	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// LoadDefaults populates c with defaults suitable for a local run.
func (c *Config) LoadDefaults() {
	c.StorePath = "pair.db"
	c.ListenAddr = "127.0.0.1:7431"
	c.DeeplinkScheme = "ploc:/"
	c.PasswordLength = 10
	c.ChallengeBytes = 32
	c.PairingTimeout = 2 * time.Minute
	c.TokenTTL = time.Minute
	c.SecondaryChannel = true
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig applies defaults, then the optional JSON file, then flags found
// in args (usually os.Args[1:]). Arguments that are not configuration flags
// are ignored so that command parsers can share the same list.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
