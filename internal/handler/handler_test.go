package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/features"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/handler"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/router"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/scoring"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/testutil"
)

// 集成测试环境
type testEnv struct {
	db     *gorm.DB
	engine *gin.Engine
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db := testutil.OpenSQLite(t)

	txRepo := repository.NewTransactionRepository(db)
	dimRepo := repository.NewDimensionRepository(db)
	featureRepo := repository.NewFeatureRepository(db)
	assessRepo := repository.NewAssessmentRepository(db)
	actionRepo := repository.NewReviewActionRepository(db)

	bundle, err := scoring.LoadFile("../scoring/testdata/fraud_model.json")
	require.NoError(t, err)
	policy, err := scoring.NewPolicy(60, 90)
	require.NoError(t, err)

	engine := features.NewEngine(txRepo, dimRepo, featureRepo, features.Options{PointInTime: true})
	refresher := features.NewHomeCountryRefresher(txRepo, dimRepo, time.Hour)

	scoringSvc := service.NewScoringService(txRepo, dimRepo, assessRepo, actionRepo, featureRepo,
		engine, refresher, scoring.NewScorer(bundle, 3), policy)
	reviewSvc := service.NewReviewService(txRepo, featureRepo, assessRepo, actionRepo, false, "analyst_1")
	monitoringSvc := service.NewMonitoringService(repository.NewMonitoringRepository(db), txRepo)
	maintenanceSvc := service.NewMaintenanceService(refresher, engine, 100)

	r := router.New(&router.Handlers{
		Transaction: handler.NewTransactionHandler(scoringSvc, monitoringSvc),
		Review:      handler.NewReviewHandler(reviewSvc),
		Monitoring:  handler.NewMonitoringHandler(monitoringSvc),
		Maintenance: handler.NewMaintenanceHandler(maintenanceSvc),
	})

	return &testEnv{db: db, engine: r}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) (int, *apiResponse) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Code != http.StatusNotFound || w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, &resp
}

func (e *testEnv) seedPendingReview(t *testing.T, txID string) {
	testutil.InsertTransactions(t, e.db, testutil.NewTransaction(txID, "u_review", time.Now().UnixMilli()))
	a := &model.RiskAssessment{
		TransactionID:    txID,
		FraudProbability: 0.7,
		RiskScore:        70,
		Decision:         model.DecisionManualReview,
	}
	require.NoError(t, a.SetReasons(nil))
	require.NoError(t, repository.NewAssessmentRepository(e.db).Upsert(context.Background(), a))
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndScoreFlow(t *testing.T) {
	env := setupTestEnv(t)

	status, resp := env.request(t, http.MethodPost, "/api/v1/transactions/score", map[string]interface{}{
		"user_id":           "u1",
		"card_id":           "c1",
		"device_id":         "d1",
		"amount":            120.5,
		"merchant":          "Amazon",
		"merchant_category": "electronics",
		"country":           "US",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, 0, resp.Code)

	var result service.ScoreResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, model.DecisionApprove, result.Decision)
	assert.Len(t, result.Reasons, 3)

	id := result.TransactionID

	status, resp = env.request(t, http.MethodGet, "/api/v1/transactions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	var tx model.Transaction
	require.NoError(t, json.Unmarshal(resp.Data, &tx))
	assert.Equal(t, "120.5", tx.Amount.String())

	status, resp = env.request(t, http.MethodGet, "/api/v1/transactions/"+id+"/features", nil)
	assert.Equal(t, http.StatusOK, status)
	var rec model.FeatureRecord
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, int64(1), rec.TxCount5m)

	status, resp = env.request(t, http.MethodGet, "/api/v1/transactions/"+id+"/assessment", nil)
	assert.Equal(t, http.StatusOK, status)
	var a model.RiskAssessment
	require.NoError(t, json.Unmarshal(resp.Data, &a))
	reasons, err := a.ReasonList()
	require.NoError(t, err)
	assert.Len(t, reasons, 3)

	status, _ = env.request(t, http.MethodPost, "/api/v1/transactions/"+id+"/score", nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = env.request(t, http.MethodGet, "/api/v1/transactions?user_id=u1&is_fraud=false", nil)
	assert.Equal(t, http.StatusOK, status)
	var txs []*model.Transaction
	require.NoError(t, json.Unmarshal(resp.Data, &txs))
	assert.Len(t, txs, 1)

	status, resp = env.request(t, http.MethodGet, "/api/v1/stats/fraud", nil)
	assert.Equal(t, http.StatusOK, status)
	var stats service.FraudStats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, int64(1), stats.Total)
}

func TestCreateAndScore_BadRequest(t *testing.T) {
	env := setupTestEnv(t)

	status, resp := env.request(t, http.MethodPost, "/api/v1/transactions/score", map[string]interface{}{
		"user_id": "u1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	status, resp = env.request(t, http.MethodPost, "/api/v1/transactions/score", map[string]interface{}{
		"user_id":           "u1",
		"card_id":           "c1",
		"device_id":         "d1",
		"amount":            -5,
		"merchant":          "Amazon",
		"merchant_category": "electronics",
		"country":           "US",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	var details map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &details))
	assert.Equal(t, "amount", details["field"])
}

func TestNotFound(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{
		"/api/v1/transactions/tx_missing",
		"/api/v1/transactions/tx_missing/features",
		"/api/v1/transactions/tx_missing/assessment",
		"/api/v1/review/cases/tx_missing",
	} {
		status, resp := env.request(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}

	status, _ := env.request(t, http.MethodPost, "/api/v1/review/cases/tx_missing/actions", map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReviewFlow(t *testing.T) {
	env := setupTestEnv(t)
	env.seedPendingReview(t, "tx_case")

	status, resp := env.request(t, http.MethodGet, "/api/v1/review/queue?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var queue []*repository.QueueItem
	require.NoError(t, json.Unmarshal(resp.Data, &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, "tx_case", queue[0].TransactionID)

	status, _ = env.request(t, http.MethodPost, "/api/v1/review/cases/tx_case/actions", map[string]string{"action": "escalate"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.request(t, http.MethodPost, "/api/v1/review/cases/tx_case/actions", map[string]string{
		"action":  "reject",
		"analyst": "alice",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var action model.ReviewAction
	require.NoError(t, json.Unmarshal(resp.Data, &action))
	assert.Equal(t, model.ReviewOutcomeApplied, action.Outcome)

	// 已结案且不允许再次审核
	status, resp = env.request(t, http.MethodPost, "/api/v1/review/cases/tx_case/actions", map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusConflict, status)
	require.NoError(t, json.Unmarshal(resp.Data, &action))
	assert.Equal(t, model.ReviewOutcomeRejectedTransition, action.Outcome)

	status, resp = env.request(t, http.MethodGet, "/api/v1/review/cases/tx_case", nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Transaction   model.Transaction     `json:"transaction"`
		ReviewHistory []*model.ReviewAction `json:"review_history"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.True(t, view.Transaction.IsFraud)
	assert.Len(t, view.ReviewHistory, 2)

	status, _ = env.request(t, http.MethodGet, "/api/v1/review/queue?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMonitoringAndMaintenance(t *testing.T) {
	env := setupTestEnv(t)
	env.seedPendingReview(t, "tx_m")

	status, resp := env.request(t, http.MethodGet, "/api/v1/monitoring/summary", nil)
	require.Equal(t, http.StatusOK, status)
	var summary repository.DecisionSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, int64(1), summary.ManualReview)

	status, resp = env.request(t, http.MethodGet, "/api/v1/monitoring/score-buckets", nil)
	require.Equal(t, http.StatusOK, status)
	var buckets []*repository.ScoreBucket
	require.NoError(t, json.Unmarshal(resp.Data, &buckets))
	assert.Len(t, buckets, 4)

	status, _ = env.request(t, http.MethodGet, "/api/v1/monitoring/top-merchants?limit=51", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.request(t, http.MethodGet, "/api/v1/monitoring/top-merchants?limit=5", nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = env.request(t, http.MethodPost, "/api/v1/maintenance/features/backfill?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var backfill service.BackfillResult
	require.NoError(t, json.Unmarshal(resp.Data, &backfill))
	assert.Equal(t, 1, backfill.Processed)

	status, resp = env.request(t, http.MethodPost, "/api/v1/maintenance/home-country/refresh", nil)
	require.Equal(t, http.StatusOK, status)
	var refreshed features.RefreshResult
	require.NoError(t, json.Unmarshal(resp.Data, &refreshed))
	assert.Equal(t, 0, refreshed.Scanned)
}
