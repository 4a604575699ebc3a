// Package config loads runtime configuration for a pairing device.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string     path of the SQLite session store
//	-p string     session store passphrase
//	-l string     listen address of the local link endpoint
//	-peers string comma-separated link endpoints to discover at start
//	-s string     deep-link scheme used for pairing and session links
//	-pwlen int    length of generated pairing passwords
//	-challenge int random bytes per attestation challenge
//	-t duration   pairing attempt timeout
//	-ttl duration lifetime of a relayed secondary token
//	-nearby bool  enable the secondary token channel (use -nearby=false)
//	-m string     address of the Prometheus /metrics listener, empty disables
//	-log string   log level: debug, info, warn, error
//	-logfmt string log format: text or json
//
// # JSON schema
//
// Durations accept strings like "2m" or integer nanoseconds:
//
//	{
//	  "store_path": "pair.db",
//	  "listen_addr": "127.0.0.1:7431",
//	  "peers": ["127.0.0.1:7432"],
//	  "deeplink_scheme": "ploc:/",
//	  "pairing_timeout": "2m"
//	}
package config
