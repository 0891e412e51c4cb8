package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"appraiser/internal/database"
	"appraiser/internal/model"
	"appraiser/internal/observability"
	"appraiser/internal/valuation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer serves an engine over a memory store seeded with the NSA/OG
// scenario plus an OG/HK relation.
func newTestServer(t *testing.T) (*httptest.Server, *database.MemoryRepository) {
	t.Helper()
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	for _, tr := range []model.TradeObservation{
		model.NewTradeObservation(2, "NSA", 3, "OG"),
		model.NewTradeObservation(4, "OG", 6, "NSA"),
		model.NewTradeObservation(1, "OG", 2, "HK"),
	} {
		require.NoError(t, repo.AppendTrade(ctx, tr))
	}

	metrics := observability.NewMetrics("test")
	engine := valuation.NewEngine(testLogger(), repo, metrics)
	_, err := engine.Recompute(ctx)
	require.NoError(t, err)

	srv := New(":0", engine, testLogger(), Options{MetricsPath: "/metrics", MetricsHandler: metrics.Handler()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, repo
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Relationships(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/relationships")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rels []valuation.Relationship
	require.NoError(t, json.Unmarshal(body, &rels))
	require.Len(t, rels, 4)
	assert.Equal(t, "HK", rels[0].TypeA)
	assert.Equal(t, "OG", rels[0].TypeB)
	assert.Equal(t, 0.5, *rels[0].AverageRatio)
	assert.Equal(t, "NSA", rels[1].TypeA)
	assert.Equal(t, 0.875, *rels[1].AverageRatio)
	assert.Equal(t, 2, rels[1].TradeCount)
	assert.Equal(t, 1.143, *rels[3].AverageRatio)
}

func TestServer_Hypotrade(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("overpay", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/hypotrade?off_t=NSA&off_a=2&req_t=OG&req_a=2")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var res valuation.TradeEvaluation
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, valuation.Overpay, res.Analysis.Status)
		assert.Equal(t, "OG_per_NSA", res.Analysis.RatioUnit)
		assert.Equal(t, int64(2), res.TradeDetails.OfferedAmount)
	})

	t.Run("missing parameters", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/hypotrade?off_t=NSA&off_a=2")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		e := decodeError(t, body)
		assert.Equal(t, "missing_parameters", e.Error)
		assert.Contains(t, e.Message, "req_t, req_a")
	})

	t.Run("non-integer amount", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/hypotrade?off_t=NSA&off_a=two&req_t=OG&req_a=2")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_parameter_type", decodeError(t, body).Error)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/hypotrade?off_t=NSA&off_a=0&req_t=OG&req_a=2")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_parameter", decodeError(t, body).Error)
	})

	t.Run("unknown relation", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/hypotrade?off_t=NSA&off_a=1&req_t=HK&req_a=1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "relation_not_found", decodeError(t, body).Error)
	})
}

func TestServer_Equivalents(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("direct relations only", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/equivalents?base_type=nsa&base_quantity=4")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		equivalents := raw["equivalents"].(map[string]any)
		assert.Equal(t, 3.5, equivalents["OG"])
		hk, ok := equivalents["HK"]
		assert.True(t, ok)
		assert.Nil(t, hk)
		assert.Equal(t, "NSA", raw["base_type"])
	})

	t.Run("bad quantity", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/equivalents?base_type=NSA&base_quantity=lots")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_parameter_type", decodeError(t, body).Error)
	})

	t.Run("unknown type", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/equivalents?base_type=GBG&base_quantity=1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "type_not_found", decodeError(t, body).Error)
	})
}

func TestServer_Maintenance(t *testing.T) {
	ts, repo := newTestServer(t)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/relationships?type_a=HK&type_b=OG")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodDelete, ts.URL+"/relationships?type_a=HK&type_b=OG")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "relation_not_found", decodeError(t, body).Error)

	resp, body = do(t, http.MethodDelete, ts.URL+"/trades?type=hk")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"removed":1,"stale_relations":[{"type_a":"OG","type_b":"HK","average_ratio":0.5,"trade_count":1}]}`, string(body))

	resp, body = do(t, http.MethodPost, ts.URL+"/recompute")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res valuation.RecomputeResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.TradesRead)
	assert.Equal(t, 2, res.EntriesWritten)

	trades, err := repo.ListTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestServer_MethodsAndCORS(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := do(t, http.MethodOptions, ts.URL+"/relationships")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")

	resp, _ = do(t, http.MethodPost, ts.URL+"/relationships")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_recompute_runs_total")
}

type MockValuator struct {
	mock.Mock
}

func (m *MockValuator) Relationships(ctx context.Context) ([]valuation.Relationship, error) {
	args := m.Called(ctx)
	rels, _ := args.Get(0).([]valuation.Relationship)
	return rels, args.Error(1)
}

func (m *MockValuator) Evaluate(ctx context.Context, offType string, offQty int64, reqType string, reqQty int64) (*valuation.TradeEvaluation, error) {
	args := m.Called(ctx, offType, offQty, reqType, reqQty)
	res, _ := args.Get(0).(*valuation.TradeEvaluation)
	return res, args.Error(1)
}

func (m *MockValuator) Expand(ctx context.Context, baseType string, baseQty float64) (*valuation.Equivalence, error) {
	args := m.Called(ctx, baseType, baseQty)
	res, _ := args.Get(0).(*valuation.Equivalence)
	return res, args.Error(1)
}

func (m *MockValuator) Recompute(ctx context.Context) (valuation.RecomputeResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(valuation.RecomputeResult), args.Error(1)
}

func (m *MockValuator) RemoveRelation(ctx context.Context, typeA, typeB string) error {
	args := m.Called(ctx, typeA, typeB)
	return args.Error(0)
}

func (m *MockValuator) PurgeType(ctx context.Context, itemType string) (valuation.PurgeResult, error) {
	args := m.Called(ctx, itemType)
	return args.Get(0).(valuation.PurgeResult), args.Error(1)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"database not found", &valuation.Error{Kind: valuation.KindDatabaseNotFound, Message: "gone"}, http.StatusServiceUnavailable, "database_not_found"},
		{"database error", &valuation.Error{Kind: valuation.KindDatabaseError, Message: "boom"}, http.StatusInternalServerError, "database_error"},
		{"data fetch failed", &valuation.Error{Kind: valuation.KindDataFetchFailed, Message: "slow"}, http.StatusInternalServerError, "data_fetch_failed"},
		{"foreign error", errors.New("panic averted"), http.StatusInternalServerError, "unexpected_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := new(MockValuator)
			v.On("Relationships", mock.Anything).Return(nil, fmt.Errorf("wrapped: %w", tt.err))
			ts := httptest.NewServer(New(":0", v, testLogger(), Options{}).Handler())
			defer ts.Close()

			resp, body := do(t, http.MethodGet, ts.URL+"/relationships")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, decodeError(t, body).Error)
		})
	}
}
