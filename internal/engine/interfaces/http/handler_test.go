package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

func setupRouter(t *testing.T) (*gin.Engine, *application.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := application.NewEngine(application.Config{
		CommissionBps: decimal.RequireFromString("10"),
		StartingCash:  decimal.RequireFromString("100000"),
		RiskInterval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	r := gin.New()
	NewEngineHandler(e).RegisterRoutes(r.Group(""))
	return r, e
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOpenAndListPositions(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/positions",
		`{"symbol":"BTC-USD","side":"LONG","quantity":"2","entry_price":"50000"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var opened struct {
		Data application.PositionDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.NotEmpty(t, opened.Data.PositionID)
	assert.Equal(t, "50000", opened.Data.EntryPrice)

	w = doRequest(r, http.MethodGet, "/api/v1/positions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Data  []application.PositionDTO `json:"data"`
		Total int                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestOpenPositionValidation(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/positions",
		`{"symbol":"BTC-USD","side":"SIDEWAYS","quantity":"1","entry_price":"100"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/positions",
		`{"symbol":"BTC-USD","side":"LONG","quantity":"abc","entry_price":"100"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/positions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClosePositionEndpoint(t *testing.T) {
	r, e := setupRouter(t)
	ctx := context.Background()

	p, err := e.OpenPosition(ctx, "BTC-USD", domain.SideLong, decimal.RequireFromString("2"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	// 超量平仓 400
	w := doRequest(r, http.MethodPost, "/api/v1/positions/"+p.ID+"/close", `{"quantity":"5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 空请求体为全平
	w = doRequest(r, http.MethodPost, "/api/v1/positions/"+p.ID+"/close", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, e.GetPositions())

	// 未知持仓 404
	w = doRequest(r, http.MethodPost, "/api/v1/positions/POS999/close", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRiskControlEndpoints(t *testing.T) {
	r, e := setupRouter(t)
	ctx := context.Background()

	p, err := e.OpenPosition(ctx, "ETH-USD", domain.SideLong, decimal.RequireFromString("10"), decimal.RequireFromString("2000"))
	require.NoError(t, err)

	w := doRequest(r, http.MethodPut, "/api/v1/positions/"+p.ID+"/stop-loss", `{"price":"1900"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(r, http.MethodPut, "/api/v1/positions/"+p.ID+"/max-loss", `{"max_loss":"500","max_loss_percent":"5"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPut, "/api/v1/positions/"+p.ID+"/max-loss", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/positions/"+p.ID+"/risk-control", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Data application.RiskControlDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "1900", got.Data.StopLoss)
	assert.Equal(t, "500", got.Data.MaxLoss)
	assert.Equal(t, "5", got.Data.MaxLossPercent)
	assert.Empty(t, got.Data.TakeProfit)

	w = doRequest(r, http.MethodPut, "/api/v1/positions/POS999/stop-loss", `{"price":"1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTickEndpointTriggersStop(t *testing.T) {
	r, e := setupRouter(t)
	ctx := context.Background()

	p, err := e.OpenPosition(ctx, "X", domain.SideLong, decimal.RequireFromString("100"), decimal.RequireFromString("100"))
	require.NoError(t, err)
	_, err = e.SetStopLoss(ctx, p.ID, decimal.RequireFromString("96"))
	require.NoError(t, err)

	w := doRequest(r, http.MethodPost, "/api/v1/ticks", `{"symbol":"X","price":"95"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, e.GetPositions())

	w = doRequest(r, http.MethodGet, "/api/v1/positions/"+p.ID+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)

	var history struct {
		Data []application.HistoryEntryDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Data, 2)
	assert.Equal(t, string(domain.ActionStopLoss), history.Data[0].Action)
}

func TestPortfolioEndpoint(t *testing.T) {
	r, e := setupRouter(t)
	ctx := context.Background()

	_, err := e.OpenPosition(ctx, "BTC-USD", domain.SideLong, decimal.RequireFromString("1"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/portfolio", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Data application.PortfolioDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Data.PositionCount)
	assert.Equal(t, "150000", got.Data.TotalValue)
}

func TestExportEndpoints(t *testing.T) {
	r, e := setupRouter(t)
	ctx := context.Background()

	_, err := e.OpenPosition(ctx, "BTC-USD", domain.SideLong, decimal.RequireFromString("1"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/export/positions.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), `"position_id"`))

	w = doRequest(r, http.MethodGet, "/api/v1/export/history.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"OPEN"`)
}
