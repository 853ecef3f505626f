// Package config builds server configuration from environment variables so
// main stays lean. Optional dependencies (identity store, redis, kafka)
// select operating modes at startup; secrets are mandatory and fail closed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the full server configuration.
type Config struct {
	Addr string

	// ChallengeSecret signs challenge tokens; IdentityPepper keys citizen ID
	// derivation. They must be distinct secrets: leaking one must not
	// compromise the other.
	ChallengeSecret []byte
	IdentityPepper  []byte

	// EnvelopeSecret signs client-held credential envelopes. Required when
	// no identity store is configured, since the envelope is then the only
	// record of a registered credential.
	EnvelopeSecret []byte

	RelyingParty RelyingParty
	Store        StoreConfig
	Redis        RedisConfig
	Audit        AuditConfig
	Grant        GrantConfig
	RateLimit    RateLimitConfig
}

// RelyingParty identifies the WebAuthn relying party ceremonies are scoped to.
type RelyingParty struct {
	ID     string
	Name   string
	Origin string
}

// StoreConfig selects the identity store adapter. Both fields empty means
// client-held credential mode.
type StoreConfig struct {
	// URL of a remote identity registry (HTTP adapter).
	URL string
	// DSN of a postgres identity store. Takes precedence over URL.
	DSN string
	// Timeout for status lookups and other adapter calls.
	Timeout time.Duration
}

// Configured reports whether any identity store backend is configured.
func (s StoreConfig) Configured() bool {
	return s.URL != "" || s.DSN != ""
}

// RedisConfig configures the optional redis-backed rate limit store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig selects the audit sink. Kafka takes precedence when brokers
// are set; otherwise the HTTP sink is used when SinkURL is set; with neither,
// events are logged and dropped.
type AuditConfig struct {
	SinkURL      string
	KafkaBrokers []string
	KafkaTopic   string
	Timeout      time.Duration
}

// GrantConfig configures genesis grant issuance.
type GrantConfig struct {
	Amount int64
}

// RateLimitConfig bounds challenge issuance and heartbeat checks per client.
type RateLimitConfig struct {
	ChallengePerMinute int
	HeartbeatPerMinute int
	Disabled           bool
}

// FromEnv builds a Config from CIVITAS_* environment variables.
// Missing secrets are a hard error: the service never runs with an unsigned
// challenge path or a guessable identity pepper.
func FromEnv() (*Config, error) {
	challengeSecret := os.Getenv("CIVITAS_CHALLENGE_SECRET")
	if challengeSecret == "" {
		return nil, fmt.Errorf("CIVITAS_CHALLENGE_SECRET is required")
	}
	identityPepper := os.Getenv("CIVITAS_IDENTITY_PEPPER")
	if identityPepper == "" {
		return nil, fmt.Errorf("CIVITAS_IDENTITY_PEPPER is required")
	}
	if challengeSecret == identityPepper {
		return nil, fmt.Errorf("CIVITAS_CHALLENGE_SECRET and CIVITAS_IDENTITY_PEPPER must differ")
	}

	cfg := &Config{
		Addr:            envOr("CIVITAS_ADDR", ":8080"),
		ChallengeSecret: []byte(challengeSecret),
		IdentityPepper:  []byte(identityPepper),
		RelyingParty: RelyingParty{
			ID:     envOr("CIVITAS_RP_ID", "localhost"),
			Name:   envOr("CIVITAS_RP_NAME", "Civitas"),
			Origin: envOr("CIVITAS_RP_ORIGIN", "http://localhost:8080"),
		},
		Store: StoreConfig{
			URL:     os.Getenv("CIVITAS_STORE_URL"),
			DSN:     os.Getenv("CIVITAS_STORE_DSN"),
			Timeout: envDuration("CIVITAS_STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CIVITAS_REDIS_URL"),
			PoolSize:     envInt("CIVITAS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CIVITAS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CIVITAS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CIVITAS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CIVITAS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: AuditConfig{
			SinkURL:    os.Getenv("CIVITAS_AUDIT_SINK_URL"),
			KafkaTopic: envOr("CIVITAS_KAFKA_TOPIC", "civitas.audit"),
			Timeout:    envDuration("CIVITAS_AUDIT_TIMEOUT", time.Second),
		},
		Grant: GrantConfig{
			Amount: int64(envInt("CIVITAS_GRANT_AMOUNT", 100)),
		},
		RateLimit: RateLimitConfig{
			ChallengePerMinute: envInt("CIVITAS_RATE_LIMIT_CHALLENGE", 10),
			HeartbeatPerMinute: envInt("CIVITAS_RATE_LIMIT_HEARTBEAT", 20),
			Disabled:           os.Getenv("CIVITAS_RATE_LIMIT_DISABLED") == "true",
		},
	}

	envelopeSecret := os.Getenv("CIVITAS_ENVELOPE_SECRET")
	if envelopeSecret == "" && !cfg.Store.Configured() {
		return nil, fmt.Errorf("CIVITAS_ENVELOPE_SECRET is required when no identity store is configured")
	}
	if envelopeSecret == challengeSecret || envelopeSecret == identityPepper {
		return nil, fmt.Errorf("CIVITAS_ENVELOPE_SECRET must differ from the other secrets")
	}
	cfg.EnvelopeSecret = []byte(envelopeSecret)

	if brokers := os.Getenv("CIVITAS_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Audit.KafkaBrokers = append(cfg.Audit.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
