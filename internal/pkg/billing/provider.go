package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/skaidler/captiondeck/internal/pkg/env"
)

// ProviderClient issues side-effect instructions back to the payment
// provider. The reconciler only ever calls it fire-and-forget.
type ProviderClient interface {
	CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) error
}

type httpProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProviderClientFromEnv builds the HTTP client for the provider API.
func NewProviderClientFromEnv() ProviderClient {
	return &httpProviderClient{
		baseURL: strings.TrimRight(env.GetEnv("PROVIDER_API_URL", "https://api.payments.example.com"), "/"),
		apiKey:  env.GetEnv("PROVIDER_API_KEY", ""),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpProviderClient) CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) error {
	url := fmt.Sprintf("%s/v1/subscriptions/%s/cancel_at_period_end", p.baseURL, providerSubscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d for %s", resp.StatusCode, providerSubscriptionID)
	}
	return nil
}
