package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"posledger/backend/internal/realtime"
)

func TestEventStreamDeliversSaleCreated(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "SKU-A", 10)

	server := httptest.NewServer(env.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.cashierToken(t))

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken(t), map[string]any{
		"items":   []map[string]any{{"sku": "SKU-A", "qty": 1}},
		"payment": map[string]any{"method": "card", "amount": "2500"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	require.Equal(t, realtime.EventSaleCreated, eventLine)

	var event realtime.Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &event))
	require.Equal(t, realtime.EventSaleCreated, event.Type)
	require.Contains(t, string(event.Data), "SKU-A")
}

func TestEventStreamRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/events", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
