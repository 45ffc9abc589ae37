package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// FileConfig models the optional oneauth.json config document. Every field
// can be overridden through environment variables in Load.
type FileConfig struct {
	DialogURL  string `json:"dialogUrl"`
	APIURL     string `json:"apiUrl"`
	ClientID   string `json:"clientId"`
	StorageKey string `json:"storageKey"`
	Polling    struct {
		IntervalMs  int `json:"intervalMs"`
		MaxAttempts int `json:"maxAttempts"`
	} `json:"polling"`
	Signer struct {
		HTTPPort         int    `json:"httpPort"`
		PrivateKeyHex    string `json:"privateKeyHex"`
		DeveloperID      string `json:"developerId"`
		HMACSecret       string `json:"hmacSecret"`
		ClockSkewSeconds int    `json:"clockSkewSeconds"`
	} `json:"signer"`
}

// SDKConfig holds the values the client-side protocol engine needs.
type SDKConfig struct {
	DialogURL    string
	APIURL       string
	ClientID     string
	StorageKey   string
	StorePath    string
	PollInterval time.Duration
	PollAttempts int
	HashTimeout  time.Duration
}

// SignerConfig holds the values the intent-signer service needs.
type SignerConfig struct {
	HTTPPort      int
	PrivateKeyHex string
	DeveloperID   string
	HMACSecret    string
	ClockSkew     time.Duration
}

// AppConfig ties together file + environment values and derived defaults.
type AppConfig struct {
	SDK    SDKConfig
	Signer SignerConfig
}

const (
	DefaultStorageKey   = "1auth-user"
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultPollAttempts = 120
	DefaultDialogURL    = "https://id.1auth.xyz"
	DefaultAPIURL       = "https://api.1auth.xyz"
)

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	var file FileConfig
	if path := envOr("ONEAUTH_CONFIG_PATH", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	sdk := SDKConfig{
		DialogURL:    envOr("ONEAUTH_DIALOG_URL", or(file.DialogURL, DefaultDialogURL)),
		APIURL:       envOr("ONEAUTH_API_URL", or(file.APIURL, DefaultAPIURL)),
		ClientID:     envOr("ONEAUTH_CLIENT_ID", file.ClientID),
		StorageKey:   envOr("ONEAUTH_STORAGE_KEY", or(file.StorageKey, DefaultStorageKey)),
		StorePath:    envOr("ONEAUTH_STORE_PATH", filepath.Join(os.TempDir(), "oneauth-user.json")),
		PollInterval: time.Duration(envOrInt("ONEAUTH_POLL_INTERVAL_MS", orInt(file.Polling.IntervalMs, int(DefaultPollInterval/time.Millisecond)))) * time.Millisecond,
		PollAttempts: envOrInt("ONEAUTH_POLL_MAX_ATTEMPTS", orInt(file.Polling.MaxAttempts, DefaultPollAttempts)),
		HashTimeout:  time.Duration(envOrInt("ONEAUTH_HASH_TIMEOUT_MS", 60_000)) * time.Millisecond,
	}

	if _, err := DialogOrigin(sdk.DialogURL); err != nil {
		return nil, err
	}

	signer := SignerConfig{
		HTTPPort:      envOrInt("SIGNER_HTTP_PORT", orInt(file.Signer.HTTPPort, 3100)),
		PrivateKeyHex: envOr("SIGNER_PRIVATE_KEY", file.Signer.PrivateKeyHex),
		DeveloperID:   envOr("SIGNER_DEVELOPER_ID", file.Signer.DeveloperID),
		HMACSecret:    envOr("SIGNER_HMAC_SECRET", file.Signer.HMACSecret),
		ClockSkew:     time.Duration(envOrInt("SIGNER_CLOCK_SKEW_SECONDS", orInt(file.Signer.ClockSkewSeconds, 60))) * time.Second,
	}

	return &AppConfig{SDK: sdk, Signer: signer}, nil
}

// DialogOrigin derives the trusted message origin from the dialog base URL.
// Sessions compare every inbound message origin against this value.
func DialogOrigin(dialogURL string) (string, error) {
	u, err := url.Parse(dialogURL)
	if err != nil {
		return "", fmt.Errorf("parse dialog url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("dialog url %q missing scheme or host", dialogURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func orInt(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}
