package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sirbrams/campuschat"
)

// getClient creates a campus client for the configured user.
func getClient() (*campuschat.Client, *Config, error) {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.UserID == "" {
		return nil, nil, errors.New("no user configured. Run 'campuschat init <user-id> <role>' first")
	}
	if !campuschat.Role(cfg.Auth.Role).Valid() {
		return nil, nil, fmt.Errorf("invalid role %q in config (student or mentor)", cfg.Auth.Role)
	}

	opts := []campuschat.ClientOption{campuschat.WithLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, campuschat.WithBaseURL(cfg.Default.BaseURL))
	}
	return campuschat.NewClient(cfg.Actor(), opts...), cfg, nil
}

// apiError turns library errors into short CLI messages.
func apiError(err error) error {
	var apiErr *campuschat.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error: %s", apiErr.Message)
	}
	return fmt.Errorf("request failed: %w", err)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
