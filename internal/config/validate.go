package config

import (
	"errors"
	"fmt"
)

const (
	minPasswordLength = 6
	minChallengeBytes = 16
)

var ErrInvalidConfig = errors.New("invalid config")

// Validate rejects security parameters below the supported minimums.
func (c *Config) Validate() error {
	if c.PasswordLength < minPasswordLength {
		return fmt.Errorf("%w: password length %d is below %d", ErrInvalidConfig, c.PasswordLength, minPasswordLength)
	}
	if c.ChallengeBytes < minChallengeBytes {
		return fmt.Errorf("%w: challenge of %d bytes is below %d", ErrInvalidConfig, c.ChallengeBytes, minChallengeBytes)
	}
	if c.PairingTimeout <= 0 {
		return fmt.Errorf("%w: pairing timeout must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	if c.DeeplinkScheme == "" {
		return fmt.Errorf("%w: deeplink scheme is empty", ErrInvalidConfig)
	}
	return nil
}
