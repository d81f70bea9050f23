package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/pkg/logger"
)

func TestSelfCallForwardsTraceID(t *testing.T) {
	var gotTrace, gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get(TraceIDHeader)
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","transaction_id":"txn-abc123"}`))
	}))
	defer server.Close()

	client := NewSelfClient(server.URL, 2*time.Second, logger.NewNoop())
	body, err := client.PostPayment(context.Background(), "trace-42")
	require.NoError(t, err)

	assert.Equal(t, "trace-42", gotTrace)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/payment", gotPath)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "txn-abc123", body["transaction_id"])
}

func TestSelfCallInventory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/inventory", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","available":true,"quantity":42}`))
	}))
	defer server.Close()

	client := NewSelfClient(server.URL, 2*time.Second, logger.NewNoop())
	body, err := client.GetInventory(context.Background(), "trace-42")
	require.NoError(t, err)
	assert.Equal(t, true, body["available"])
}

func TestSelfCallNon2xxIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Simulated failure: Circuit breaker open"}`))
	}))
	defer server.Close()

	client := NewSelfClient(server.URL, 2*time.Second, logger.NewNoop())
	_, err := client.PostPayment(context.Background(), "trace-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "Circuit breaker open")
}

func TestSelfCallTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewSelfClient(server.URL, 50*time.Millisecond, logger.NewNoop())
	_, err := client.GetInventory(context.Background(), "trace-42")
	assert.Error(t, err)
}
