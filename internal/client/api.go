package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mossy-p/airtext/internal/models"
)

// FetchConfig reads the server's ICE server list.
func FetchConfig(ctx context.Context, base string) (models.ClientConfig, error) {
	var cfg models.ClientConfig
	err := doJSON(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/api/config", "", &cfg)
	return cfg, err
}

// NewSession obtains a session token, refreshing token when it is set.
func NewSession(ctx context.Context, base, token string) (models.SessionResponse, error) {
	var out models.SessionResponse
	err := doJSON(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/api/auth/session", token, &out)
	return out, err
}

func doJSON(ctx context.Context, method, url, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}
