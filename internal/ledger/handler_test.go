package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-wms/stockpile/internal/platform/cache"
	"github.com/stockpile-wms/stockpile/internal/platform/httpx"
	"github.com/stockpile-wms/stockpile/internal/shared"
)

func newTestServer(t *testing.T, repo *memoryRepo) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, nil))
	handler := NewHandler(logger, newTestService(repo), nil, nil, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), 7)))
		})
	})
	handler.MountRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func TestHandlerCreateGRN(t *testing.T) {
	repo := newMemoryRepo()
	server := newTestServer(t, repo)

	resp, body := postJSON(t, server.URL+"/movements/grn", `{
		"supplier_id": 10,
		"lines": [{"variation_id": 1, "quantity": 100, "unit_cost": "5"}]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result MovementResult
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, MovementGRN, result.Header.Type)
	require.Equal(t, int64(100), result.Balances[1])
	require.Equal(t, int64(7), result.Header.CreatedBy)
	require.Equal(t, int64(100), repo.balance(1))
}

func TestHandlerRejectsEmptyLines(t *testing.T) {
	server := newTestServer(t, newMemoryRepo())

	resp, body := postJSON(t, server.URL+"/movements/grn", `{"supplier_id": 10, "lines": []}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(body, &problem))
	require.Equal(t, shared.CodeValidation, problem.Code)
}

func TestHandlerInsufficientStockMapsToConflict(t *testing.T) {
	repo := newMemoryRepo()
	server := newTestServer(t, repo)

	resp, _ := postJSON(t, server.URL+"/movements/gin", `{
		"issued_to": "workshop",
		"lines": [{"variation_id": 1, "quantity": 5, "unit_cost": "0"}]
	}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, int64(0), repo.balance(1))
}

func TestHandlerDeleteMovement(t *testing.T) {
	repo := newMemoryRepo()
	server := newTestServer(t, repo)

	resp, body := postJSON(t, server.URL+"/movements/grn", `{
		"supplier_id": 10,
		"lines": [{"variation_id": 1, "quantity": 10, "unit_cost": "2"}]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result MovementResult
	require.NoError(t, json.Unmarshal(body, &result))

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/movements/%d", server.URL, result.Header.ID), nil)
	require.NoError(t, err)
	deleteResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer deleteResp.Body.Close()
	require.Equal(t, http.StatusNoContent, deleteResp.StatusCode)
	require.Equal(t, int64(0), repo.balance(1))
}

func TestHandlerReturnTransition(t *testing.T) {
	repo := newMemoryRepo()
	server := newTestServer(t, repo)

	resp, body := postJSON(t, server.URL+"/movements/returns", `{
		"supplier_id": 10,
		"reason": "damaged on arrival",
		"lines": [{"variation_id": 1, "quantity": 2, "unit_cost": "5"}]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result MovementResult
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, StatusPending, result.Header.Status)

	transitionURL := fmt.Sprintf("%s/movements/%d/transition", server.URL, result.Header.ID)
	resp, body = postJSON(t, transitionURL, `{"status": "APPROVED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated Movement
	require.NoError(t, json.Unmarshal(body, &updated))
	require.Equal(t, StatusApproved, updated.Status)

	resp, _ = postJSON(t, transitionURL, `{"status": "PENDING"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerLowStockSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, nil))
	handler := NewHandler(logger, newTestService(newMemoryRepo()), nil, nil, client)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/stock/low-stock")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	snapshot := cache.LowStockSnapshot{
		GeneratedAt: time.Date(2026, time.February, 10, 6, 30, 0, 0, time.UTC),
		Items: []cache.LowStockItem{
			{VariationID: 1, SKU: "TS-RED-M", ProductName: "T-Shirt", QtyAvailable: 3, ReorderLevel: 10},
		},
	}
	require.NoError(t, cache.WriteLowStock(context.Background(), client, snapshot))

	resp, body := getJSON(t, server.URL+"/stock/low-stock")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got cache.LowStockSnapshot
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Items, 1)
	require.Equal(t, int64(1), got.Items[0].VariationID)
	require.True(t, snapshot.GeneratedAt.Equal(got.GeneratedAt))
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
