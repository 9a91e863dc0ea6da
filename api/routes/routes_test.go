package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ArowuTest/lottery-settlement/internal/config"
	"github.com/ArowuTest/lottery-settlement/internal/handlers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouter_ProtectsLotteryRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.JWT.Secret = "secret"
	cfg.Server.AllowedHosts = []string{"localhost"}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("lottery_runs_total 0\n"))
	})
	router := SetupRouter(cfg, HandlerDependencies{
		SettlementHandler: handlers.NewSettlementHandler(nil),
		Metrics:           metrics,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lottery_runs_total")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/lottery/state"},
		{http.MethodGet, "/api/v1/lottery/winners"},
		{http.MethodPost, "/api/v1/lottery/draw"},
		{http.MethodPost, "/api/v1/lottery/jackpot/update"},
		{http.MethodPost, "/api/v1/lottery/payout"},
		{http.MethodPost, "/api/v1/lottery/payout/affiliates"},
	} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}
