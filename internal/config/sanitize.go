package config

import (
	"net/url"
	"regexp"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Store.URL = MaskURL(cfg.Store.URL)
	return &sanitized
}

var userinfoPattern = regexp.MustCompile(`^([a-z]+://)[^@/]*@`)

// MaskedSecret replaces credentials in sanitized output.
const MaskedSecret = "xxxxx"

// MaskURL replaces the password part of a store URL with MaskedSecret.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		// Unparseable URLs may still carry credentials.
		return userinfoPattern.ReplaceAllString(raw, "${1}"+MaskedSecret+"@")
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), MaskedSecret)
	} else if u.User.Username() != "" {
		// rediss://secret@host uses the user part as the password.
		u.User = url.User(MaskedSecret)
	}
	return u.String()
}
