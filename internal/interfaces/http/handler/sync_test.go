package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oms/backend/internal/domain/integration"
)

func performRequest(router *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type stubSyncService struct {
	runs          []*integration.SyncRun
	syncErr       error
	statusUpdates []integration.StatusUpdateRequest
	statusErr     error
}

func (s *stubSyncService) SyncAll(context.Context) ([]*integration.SyncRun, error) {
	return s.runs, s.syncErr
}

func (s *stubSyncService) SyncChannel(_ context.Context, code integration.ChannelCode) (*integration.SyncRun, error) {
	if len(s.runs) == 0 {
		return nil, s.syncErr
	}
	return s.runs[0], s.syncErr
}

func (s *stubSyncService) RecentRuns(_ context.Context, code integration.ChannelCode, limit int) ([]*integration.SyncRun, error) {
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubSyncService) PushStatusUpdate(_ context.Context, _ integration.ChannelCode, req *integration.StatusUpdateRequest) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statusUpdates = append(s.statusUpdates, *req)
	return nil
}

func syncRouter(svc OrderSyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSyncHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func sampleRun(status integration.SyncStatus) *integration.SyncRun {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	finished := now.Add(3 * time.Second)
	return &integration.SyncRun{
		ID:         uuid.New(),
		Channel:    integration.ChannelShopify,
		Since:      now.Add(-24 * time.Hour),
		Until:      now,
		Pulled:     18,
		Failed:     2,
		Status:     status,
		StartedAt:  now,
		FinishedAt: &finished,
	}
}

func TestSyncHandler_SyncChannel(t *testing.T) {
	svc := &stubSyncService{runs: []*integration.SyncRun{sampleRun(integration.SyncStatusPartial)}}
	router := syncRouter(svc)

	w := performRequest(router, "POST", "/api/v1/channels/SHOPIFY/sync", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Channel string `json:"channel"`
			Status  string `json:"status"`
			Pulled  int    `json:"pulled"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "SHOPIFY", resp.Data.Channel)
	assert.Equal(t, "PARTIAL", resp.Data.Status)
	assert.Equal(t, 18, resp.Data.Pulled)
}

func TestSyncHandler_SyncChannel_UnknownChannel(t *testing.T) {
	router := syncRouter(&stubSyncService{})

	w := performRequest(router, "POST", "/api/v1/channels/EBAY/sync", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_UNKNOWN_PROVIDER")
}

func TestSyncHandler_SyncChannel_NotConfigured(t *testing.T) {
	svc := &stubSyncService{syncErr: fmt.Errorf("%w: no credentials", integration.ErrProviderNotConfigured)}
	router := syncRouter(svc)

	w := performRequest(router, "POST", "/api/v1/channels/MEESHO/sync", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_PROVIDER_NOT_CONFIGURED")
}

func TestSyncHandler_ListRuns(t *testing.T) {
	svc := &stubSyncService{runs: []*integration.SyncRun{
		sampleRun(integration.SyncStatusSuccess),
		sampleRun(integration.SyncStatusFailed),
	}}
	router := syncRouter(svc)

	w := performRequest(router, "GET", "/api/v1/channels/SHOPIFY/runs?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestSyncHandler_ListRuns_BadLimit(t *testing.T) {
	router := syncRouter(&stubSyncService{})

	for _, limit := range []string{"0", "101", "abc"} {
		w := performRequest(router, "GET", "/api/v1/channels/SHOPIFY/runs?limit="+limit, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestSyncHandler_PushStatusUpdate(t *testing.T) {
	svc := &stubSyncService{}
	router := syncRouter(svc)

	body, _ := json.Marshal(map[string]any{
		"external_order_id": "SH-1",
		"status":            "SHIPPED",
		"courier_name":      "Delhivery",
		"tracking_number":   "DL123",
	})
	w := performRequest(router, "POST", "/api/v1/channels/SHOPIFY/status-updates", body, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, svc.statusUpdates, 1)
	assert.Equal(t, "DL123", svc.statusUpdates[0].TrackingNumber)
}

func TestSyncHandler_PushStatusUpdate_MissingBody(t *testing.T) {
	router := syncRouter(&stubSyncService{})

	w := performRequest(router, "POST", "/api/v1/channels/SHOPIFY/status-updates", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
