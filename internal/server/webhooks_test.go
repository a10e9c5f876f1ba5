package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	paymentrepository "github.com/salonkit/salonkit/internal/payment/repository"
	paymentservice "github.com/salonkit/salonkit/internal/payment/service"
	paymentstripe "github.com/salonkit/salonkit/internal/payment/stripe"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

func signPayload(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_provider_event
		ON webhook_events (provider, provider_event_id)`).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	log := zap.NewNop()
	clk := clock.SystemClock{}

	verifier, err := paymentstripe.NewVerifier(testWebhookSecret, paymentstripe.DefaultTolerance, clk)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Config: config.Config{PlatformFeePercent: 5},
		Repo:   paymentrepository.Provide(),
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:     engine,
		db:         db,
		log:        log,
		genID:      node,
		verifier:   verifier,
		paymentSvc: paymentSvc,
	}
	srv.registerWebhookRoutes()
	return srv
}

func postWebhook(srv *Server, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`)

	rec := postWebhook(srv, payload, signPayload("whsec_wrong", payload, time.Now().Unix()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid signature", body["error"])
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`)

	rec := postWebhook(srv, payload, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAcknowledgesUnknownEventType(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"id":"evt_unknown","type":"customer.created","data":{"object":{}}}`)

	rec := postWebhook(srv, payload, signPayload(testWebhookSecret, payload, time.Now().Unix()))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["received"])
}

func TestWebhookDuplicateDeliveryStillAcknowledged(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"id":"evt_dup","type":"customer.created","data":{"object":{}}}`)
	signature := signPayload(testWebhookSecret, payload, time.Now().Unix())

	assert.Equal(t, http.StatusOK, postWebhook(srv, payload, signature).Code)
	assert.Equal(t, http.StatusOK, postWebhook(srv, payload, signature).Code)
}

func TestWebhookHandlerFailureReturns500(t *testing.T) {
	srv := newTestServer(t)
	// Losing the inbox table makes reconciliation fail outright; the
	// provider must see a 500 so it retries later.
	assert.NoError(t, srv.db.Exec(`DROP TABLE webhook_events`).Error)

	payload := []byte(`{"id":"evt_err","type":"customer.created","data":{"object":{}}}`)
	rec := postWebhook(srv, payload, signPayload(testWebhookSecret, payload, time.Now().Unix()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
