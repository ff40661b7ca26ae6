package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration for the credential core.
type Server struct {
	Addr string

	// FreeVerifyLimit is the hard cap on unentitled verification lookups per
	// durable identity. Entitlement bypasses the check; nothing resets it.
	FreeVerifyLimit int
	// PublicVerification allows anonymous (no caller identity) lookups to
	// proceed unmetered. Default false: fail closed.
	PublicVerification bool

	ShareSigningKey string
	ShareDefaultTTL time.Duration

	DatabaseURL       string
	ContentBaseURL    string
	ReconcileInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:              ":8080",
		FreeVerifyLimit:   3,
		ShareDefaultTTL:   72 * time.Hour,
		ReconcileInterval: time.Minute,
	}

	if addr := os.Getenv("ATTEST_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if v := os.Getenv("ATTEST_FREE_VERIFY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FreeVerifyLimit = n
		}
	}
	cfg.PublicVerification = os.Getenv("ATTEST_PUBLIC_VERIFICATION") == "true"

	cfg.ShareSigningKey = os.Getenv("ATTEST_SHARE_SIGNING_KEY")
	if cfg.ShareSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.ShareSigningKey = "dev-secret-key-change-in-production"
	}
	if v := os.Getenv("ATTEST_SHARE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShareDefaultTTL = d
		}
	}

	cfg.DatabaseURL = os.Getenv("ATTEST_DATABASE_URL")
	cfg.ContentBaseURL = os.Getenv("ATTEST_CONTENT_BASE_URL")
	if v := os.Getenv("ATTEST_RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconcileInterval = d
		}
	}

	return cfg
}
