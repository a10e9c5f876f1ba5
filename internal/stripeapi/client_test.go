package stripeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"status": "active",
			"customer": "cus_1",
			"metadata": {"plan": "pro", "billingPeriod": "monthly"},
			"items": {"data": [{"price": {"id": "price_1", "recurring": {"interval": "month"}}}]}
		}`))
	}))
	defer srv.Close()

	client := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	sub, err := client.GetSubscription(context.Background(), "sub_1")
	assert.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.Equal(t, "month", sub.Interval)
	assert.Equal(t, "pro", sub.Metadata["plan"])
}

func TestGetSubscriptionErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	_, err := client.GetSubscription(context.Background(), "sub_missing")
	assert.Error(t, err)
}

func TestGetSubscriptionEmptyID(t *testing.T) {
	client := NewClient(Config{SecretKey: "sk_test"})
	_, err := client.GetSubscription(context.Background(), "")
	assert.Error(t, err)
}
