package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPProvider persists profile changes by POSTing them to the identity
// provider's profile endpoint.
type HTTPProvider struct {
	log      *log.Logger
	endpoint string
	client   *http.Client
}

func NewHTTPProvider(logger *log.Logger, endpoint string) *HTTPProvider {
	return &HTTPProvider{
		log:      logger,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

type updateProfileRequest struct {
	UserId   string `json:"user_id"`
	PhotoURL string `json:"photo_url"`
}

func (p *HTTPProvider) UpdatePhotoURL(ctx context.Context, userId, photoURL string) error {
	body, err := json.Marshal(updateProfileRequest{
		UserId:   userId,
		PhotoURL: photoURL,
	})
	if err != nil {
		return fmt.Errorf("encode profile update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build profile update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("profile update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("profile update failed with status %d", resp.StatusCode)
	}

	p.log.Printf("updated photo URL for user %q", userId)
	return nil
}
