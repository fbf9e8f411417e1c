package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaidler/captiondeck/app/models"
	"github.com/skaidler/captiondeck/internal/pkg/billing"
)

const testWebhookSecret = "whsec_test"

// webhookTestRepo is a minimal billing.Repository; it records rows so the
// tests can assert which events reached the store.
type webhookTestRepo struct {
	rows    map[string]*models.Subscription
	failing bool
}

func newWebhookTestRepo() *webhookTestRepo {
	return &webhookTestRepo{rows: make(map[string]*models.Subscription)}
}

func (r *webhookTestRepo) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	if r.failing {
		return errors.New("store down")
	}
	cp := *sub
	r.rows[sub.ProviderSubscriptionID] = &cp
	return nil
}

func (r *webhookTestRepo) GetSubscriptionByProviderID(_ context.Context, id string) (*models.Subscription, error) {
	if sub, ok := r.rows[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, errors.New("record not found")
}

func (r *webhookTestRepo) GetSubscriptionByUser(_ context.Context, userID string) (*models.Subscription, error) {
	for _, sub := range r.rows {
		if sub.UserID == userID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *webhookTestRepo) DeleteSubscriptionByProviderID(_ context.Context, id string) (bool, error) {
	if r.failing {
		return false, errors.New("store down")
	}
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *webhookTestRepo) DeleteExpiredSubscriptions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, sub := range r.rows {
		if sub.IsExpired(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func newWebhookTestApp(t *testing.T, repo *webhookTestRepo) *fiber.App {
	t.Helper()
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)

	prev := newWebhookReconciler
	newWebhookReconciler = func() *billing.Reconciler {
		return billing.NewReconciler(repo, nil)
	}
	t.Cleanup(func() { newWebhookReconciler = prev })

	app := fiber.New()
	app.Post("/webhook/payment", HandlePaymentWebhook)
	return app
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhook/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp, decoded
}

func validSucceededBody() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "payment_succeeded",
		"data": {
			"subscription_id": "sub_1",
			"billing_reason": "subscription_create",
			"email": "jane@example.com",
			"metadata": {"user_id": "u_1", "plan_id": "pro_monthly"}
		}
	}`)
}

func TestHandlePaymentWebhook_InvalidSignature(t *testing.T) {
	repo := newWebhookTestRepo()
	app := newWebhookTestApp(t, repo)
	body := validSucceededBody()

	resp, decoded := postWebhook(t, app, body, signPayload("wrong-secret", body))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decoded["error"])
	assert.Empty(t, repo.rows)

	// A missing header fails the same way.
	resp, _ = postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, repo.rows)
}

func TestHandlePaymentWebhook_MalformedEventAcknowledged(t *testing.T) {
	repo := newWebhookTestRepo()
	app := newWebhookTestApp(t, repo)

	// payment_succeeded without user_id metadata cannot be attributed; it is
	// dropped without touching the store, and redelivery is not requested.
	body := []byte(`{
		"id": "evt_2",
		"type": "payment_succeeded",
		"data": {"subscription_id": "sub_1", "billing_reason": "subscription_create"}
	}`)

	resp, decoded := postWebhook(t, app, body, signPayload(testWebhookSecret, body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["ok"])
	assert.Equal(t, true, decoded["ignored"])
	assert.Empty(t, repo.rows)
}

func TestHandlePaymentWebhook_UnknownTypeAcknowledged(t *testing.T) {
	repo := newWebhookTestRepo()
	app := newWebhookTestApp(t, repo)

	body := []byte(`{"id": "evt_3", "type": "invoice.finalized", "data": {}}`)

	resp, decoded := postWebhook(t, app, body, signPayload(testWebhookSecret, body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["ok"])
	assert.Equal(t, true, decoded["ignored"])
	assert.Empty(t, repo.rows)
}

func TestHandlePaymentWebhook_Success(t *testing.T) {
	repo := newWebhookTestRepo()
	app := newWebhookTestApp(t, repo)
	body := validSucceededBody()

	resp, decoded := postWebhook(t, app, body, signPayload(testWebhookSecret, body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["ok"])
	assert.Nil(t, decoded["ignored"])

	sub, err := repo.GetSubscriptionByProviderID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "u_1", sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestHandlePaymentWebhook_StoreUnavailable(t *testing.T) {
	repo := newWebhookTestRepo()
	repo.failing = true
	app := newWebhookTestApp(t, repo)
	body := validSucceededBody()

	resp, decoded := postWebhook(t, app, body, signPayload(testWebhookSecret, body))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "reconcile_failed", decoded["error"])
}
