package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/config"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/scoring"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/testutil"
)

func newTestApp(t *testing.T, yaml string) *App {
	gin.SetMode(gin.TestMode)

	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)

	bundle, err := scoring.LoadFile("../scoring/testdata/fraud_model.json")
	require.NoError(t, err)

	a := New(cfg)
	a.db = testutil.OpenSQLite(t)
	a.bundle = bundle
	return a
}

func TestInitServices_WiresRoutes(t *testing.T) {
	a := newTestApp(t, "service:\n  env: test\n")

	s := miniredis.RunT(t)
	a.redisClient = redis.NewClient(&redis.Options{Addr: s.Addr()})
	require.NoError(t, a.initServices())

	r := a.routes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := []byte(`{"user_id":"u1","card_id":"c1","device_id":"d1","amount":"25.00",` +
		`"merchant":"Amazon","merchant_category":"electronics","country":"US"}`)
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/score", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/summary", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitServices_RejectsInvalidPolicy(t *testing.T) {
	a := newTestApp(t, "service:\n  env: test\n")
	a.cfg.Policy.ReviewThreshold = 95

	assert.Error(t, a.initServices())
}

func TestNewJobScheduler(t *testing.T) {
	a := newTestApp(t, "service:\n  env: test\n")
	require.NoError(t, a.initServices())

	c, err := newJobScheduler("", a.maintenanceSvc)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = newJobScheduler("0 0 3 * * *", a.maintenanceSvc)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 1)

	_, err = newJobScheduler("every day", a.maintenanceSvc)
	assert.Error(t, err)
}

func TestDatabaseConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("postgres:\n  host: db.internal\n  max_connections: 12\n  conn_max_lifetime_minutes: 5\n"))
	require.NoError(t, err)

	dbCfg := databaseConfig(cfg)
	assert.Contains(t, dbCfg.DSN, "host=db.internal")
	assert.Equal(t, 12, dbCfg.MaxOpenConns)
	assert.Equal(t, 10, dbCfg.MaxIdleConns)
	assert.Equal(t, "5m0s", dbCfg.ConnMaxLifetime.String())
}
