package clerk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type ClerkConfig struct {
	ApiUrl    string
	SecretKey string
}

// ClerkRepository queries the auth provider's backend API for a user's active
// subscription plan.
type ClerkRepository struct {
	clerkConfig ClerkConfig
	client      *http.Client
}

func NewClerkRepository(cfg ClerkConfig) *ClerkRepository {
	return &ClerkRepository{
		clerkConfig: cfg,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type subscriptionResponse struct {
	Data []struct {
		Plan struct {
			Slug string `json:"slug"`
		} `json:"plan"`
		Status string `json:"status"`
	} `json:"data"`
}

// HasPlan reports whether the given plan tier is currently active for the
// external user.
func (r *ClerkRepository) HasPlan(ctx context.Context, externalID, tier string) (bool, error) {
	url := fmt.Sprintf("%s/users/%s/billing/subscriptions", r.clerkConfig.ApiUrl, externalID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+r.clerkConfig.SecretKey)
	req.Header.Set("Accept", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return false, err
	}

	if res.StatusCode != http.StatusOK {
		return false, fmt.Errorf("clerk subscriptions returned %d: %s", res.StatusCode, string(body))
	}

	var subs subscriptionResponse
	if err := json.Unmarshal(body, &subs); err != nil {
		return false, fmt.Errorf("failed to decode clerk response: %w", err)
	}

	for _, sub := range subs.Data {
		if sub.Status == "active" && sub.Plan.Slug == tier {
			return true, nil
		}
	}

	return false, nil
}
