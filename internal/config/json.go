package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophpair/internal/flagx"
	"github.com/dmitrijs2005/gophpair/internal/timex"
)

// JsonConfig is a DTO used only for unmarshalling. Zero values leave the
// corresponding Config field untouched; pointers distinguish an explicit
// false from an absent key.
type JsonConfig struct {
	StorePath        string         `json:"store_path"`
	StorePassphrase  string         `json:"store_passphrase"`
	ListenAddr       string         `json:"listen_addr"`
	Peers            []string       `json:"peers"`
	DeeplinkScheme   string         `json:"deeplink_scheme"`
	PasswordLength   int            `json:"password_length"`
	ChallengeBytes   int            `json:"challenge_bytes"`
	PairingTimeout   timex.Duration `json:"pairing_timeout"`
	TokenTTL         timex.Duration `json:"token_ttl"`
	SecondaryChannel *bool          `json:"secondary_channel"`
	MetricsAddr      string         `json:"metrics_addr"`
	LogLevel         string         `json:"log_level"`
	LogFormat        string         `json:"log_format"`
}

// parseJSON overlays cfg with the JSON file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.StorePath, jc.StorePath)
	setString(&cfg.StorePassphrase, jc.StorePassphrase)
	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.DeeplinkScheme, jc.DeeplinkScheme)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	if len(jc.Peers) > 0 {
		cfg.Peers = jc.Peers
	}
	if jc.PasswordLength != 0 {
		cfg.PasswordLength = jc.PasswordLength
	}
	if jc.ChallengeBytes != 0 {
		cfg.ChallengeBytes = jc.ChallengeBytes
	}
	if jc.PairingTimeout.Duration != 0 {
		cfg.PairingTimeout = jc.PairingTimeout.Duration
	}
	if jc.TokenTTL.Duration != 0 {
		cfg.TokenTTL = jc.TokenTTL.Duration
	}
	if jc.SecondaryChannel != nil {
		cfg.SecondaryChannel = *jc.SecondaryChannel
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
