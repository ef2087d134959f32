package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/testutil"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
)

const (
	base   = testutil.BaseTime
	minute = testutil.Minute
)

func newTestEngine(t *testing.T, pointInTime bool) (*Engine, *gorm.DB) {
	db := testutil.OpenSQLite(t)
	engine := NewEngine(
		repository.NewTransactionRepository(db),
		repository.NewDimensionRepository(db),
		repository.NewFeatureRepository(db),
		Options{PointInTime: pointInTime},
	)
	return engine, db
}

func TestEngine_Derive_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t, true)

	_, err := engine.Derive(context.Background(), "tx_missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEngine_Derive_VelocityWindows(t *testing.T) {
	engine, db := newTestEngine(t, true)
	ctx := context.Background()

	anchor := base + 24*60*minute
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_a", "u1", anchor-23*60*minute),
		testutil.NewTransaction("tx_b", "u1", anchor-30*minute),
		testutil.NewTransaction("tx_c", "u1", anchor-2*minute),
		testutil.NewTransaction("tx_anchor", "u1", anchor),
	)

	rec, err := engine.Derive(ctx, "tx_anchor")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.TxCount5m)
	assert.Equal(t, int64(3), rec.TxCount1h)
	assert.Equal(t, int64(4), rec.TxCount24h)

	// 每一笔交易都满足窗口单调性
	for _, id := range []string{"tx_a", "tx_b", "tx_c", "tx_anchor"} {
		rec, err := engine.Derive(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.TxCount5m, int64(1), id)
		assert.LessOrEqual(t, rec.TxCount5m, rec.TxCount1h, id)
		assert.LessOrEqual(t, rec.TxCount1h, rec.TxCount24h, id)
	}
}

func TestEngine_Compute_ZeroAverage(t *testing.T) {
	engine, _ := newTestEngine(t, true)

	// 交易未入库，没有任何历史
	tx := testutil.NewTransaction("tx_detached", "u_new", base, testutil.WithAmount(500))
	rec, err := engine.Compute(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.UserAvgAmount)
	assert.Equal(t, 0.0, rec.AmountVsUserAvg)
	assert.Equal(t, int64(0), rec.TxCount24h)
}

func TestEngine_Derive_AmountRatioIsCausal(t *testing.T) {
	engine, db := newTestEngine(t, true)
	ctx := context.Background()

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithAmount(100)),
		testutil.NewTransaction("tx_2", "u1", base+minute, testutil.WithAmount(300)),
		testutil.NewTransaction("tx_later", "u1", base+2*minute, testutil.WithAmount(10000)),
	)

	rec, err := engine.Derive(ctx, "tx_2")
	require.NoError(t, err)
	assert.Equal(t, 200.0, rec.UserAvgAmount)
	assert.Equal(t, 1.5, rec.AmountVsUserAvg)
}

func TestEngine_Derive_ForeignCountry(t *testing.T) {
	engine, db := newTestEngine(t, true)
	ctx := context.Background()

	testutil.InsertUser(t, db, "u1", "US", base)
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_home", "u1", base, testutil.WithCountry("US")),
		testutil.NewTransaction("tx_abroad", "u1", base+minute, testutil.WithCountry("NG")),
		testutil.NewTransaction("tx_unknown_user", "u2", base, testutil.WithCountry("NG")),
	)

	rec, err := engine.Derive(ctx, "tx_home")
	require.NoError(t, err)
	assert.False(t, rec.IsForeignCountry)

	rec, err = engine.Derive(ctx, "tx_abroad")
	require.NoError(t, err)
	assert.True(t, rec.IsForeignCountry)

	rec, err = engine.Derive(ctx, "tx_unknown_user")
	require.NoError(t, err)
	assert.False(t, rec.IsForeignCountry)
}

func TestEngine_Derive_FraudRates(t *testing.T) {
	seed := func(t *testing.T, db *gorm.DB) {
		testutil.InsertTransactions(t, db,
			testutil.NewTransaction("tx_1", "u1", base, testutil.WithMerchant("ShadyShop", "gift_cards"), testutil.WithFraud()),
			testutil.NewTransaction("tx_2", "u2", base+minute, testutil.WithMerchant("ShadyShop", "gift_cards")),
			testutil.NewTransaction("tx_3", "u3", base+2*minute, testutil.WithMerchant("ShadyShop", "gift_cards"), testutil.WithFraud()),
			testutil.NewTransaction("tx_4", "u4", base+3*minute, testutil.WithMerchant("GiftHub", "gift_cards"), testutil.WithFraud()),
		)
	}

	t.Run("point in time", func(t *testing.T) {
		engine, db := newTestEngine(t, true)
		seed(t, db)

		rec, err := engine.Derive(context.Background(), "tx_2")
		require.NoError(t, err)
		assert.Equal(t, 0.5, rec.MerchantFraudRate)
		assert.Equal(t, 0.5, rec.CategoryFraudRate)
	})

	t.Run("all history", func(t *testing.T) {
		engine, db := newTestEngine(t, false)
		seed(t, db)

		rec, err := engine.Derive(context.Background(), "tx_2")
		require.NoError(t, err)
		assert.InDelta(t, 2.0/3.0, rec.MerchantFraudRate, 1e-12)
		assert.Equal(t, 0.75, rec.CategoryFraudRate)
	})
}

func TestEngine_Derive_DeviceFanOut(t *testing.T) {
	seed := func(t *testing.T, db *gorm.DB) {
		testutil.InsertTransactions(t, db,
			testutil.NewTransaction("tx_1", "u1", base, testutil.WithDevice("dev_x")),
			testutil.NewTransaction("tx_2", "u2", base+90*24*60*minute, testutil.WithDevice("dev_x")),
			testutil.NewTransaction("tx_3", "u3", base-90*24*60*minute, testutil.WithDevice("dev_x")),
			testutil.NewTransaction("tx_4", "u3", base-minute, testutil.WithDevice("dev_x")),
		)
	}

	t.Run("point in time", func(t *testing.T) {
		engine, db := newTestEngine(t, true)
		seed(t, db)

		rec, err := engine.Derive(context.Background(), "tx_1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.DeviceUserCount)
	})

	t.Run("all history", func(t *testing.T) {
		engine, db := newTestEngine(t, false)
		seed(t, db)

		rec, err := engine.Derive(context.Background(), "tx_1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), rec.DeviceUserCount)
	})
}

func TestEngine_Derive_Idempotent(t *testing.T) {
	engine, db := newTestEngine(t, true)
	ctx := context.Background()
	features := repository.NewFeatureRepository(db)

	testutil.InsertUser(t, db, "u1", "US", base)
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithAmount(120)),
		testutil.NewTransaction("tx_2", "u1", base+minute, testutil.WithAmount(80), testutil.WithCountry("FR")),
	)

	first, err := engine.Derive(ctx, "tx_2")
	require.NoError(t, err)
	stored1, err := features.GetByTransactionID(ctx, "tx_2")
	require.NoError(t, err)

	second, err := engine.Derive(ctx, "tx_2")
	require.NoError(t, err)
	stored2, err := features.GetByTransactionID(ctx, "tx_2")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, stored1, stored2)
	assert.Equal(t, first, stored2)
	assert.Equal(t, base+minute, stored2.AsOf)
}

func TestEngine_Backfill(t *testing.T) {
	engine, db := newTestEngine(t, true)
	ctx := context.Background()
	features := repository.NewFeatureRepository(db)

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base),
		testutil.NewTransaction("tx_2", "u1", base+minute),
		testutil.NewTransaction("tx_3", "u1", base+2*minute),
	)

	n, err := engine.Backfill(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = features.GetByTransactionID(ctx, "tx_3")
	assert.ErrorIs(t, err, repository.ErrFeatureRecordNotFound)

	n, err = engine.Backfill(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := features.GetByTransactionID(ctx, "tx_3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.TxCount5m)
}

func TestHomeCountryRefresher(t *testing.T) {
	db := testutil.OpenSQLite(t)
	ctx := context.Background()
	users := repository.NewDimensionRepository(db)
	refresher := NewHomeCountryRefresher(repository.NewTransactionRepository(db), users, time.Hour)
	now := base + 10*24*60*minute
	refresher.now = func() time.Time { return time.UnixMilli(now) }

	testutil.InsertUser(t, db, "u_fresh", "US", now-10*minute)
	testutil.InsertUser(t, db, "u_stale", "US", now-2*60*minute)
	testutil.InsertUser(t, db, "u_idle", "DE", 0)
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u_fresh", base, testutil.WithCountry("FR")),
		testutil.NewTransaction("tx_2", "u_stale", base, testutil.WithCountry("FR")),
		testutil.NewTransaction("tx_3", "u_stale", base+minute, testutil.WithCountry("FR")),
		testutil.NewTransaction("tx_4", "u_stale", base+2*minute, testutil.WithCountry("US")),
	)

	fresh, err := users.GetUser(ctx, "u_fresh")
	require.NoError(t, err)
	changed, err := refresher.RefreshIfStale(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "US", fresh.HomeCountry)

	stale, err := users.GetUser(ctx, "u_stale")
	require.NoError(t, err)
	changed, err = refresher.RefreshIfStale(ctx, stale)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := users.GetUser(ctx, "u_stale")
	require.NoError(t, err)
	assert.Equal(t, "FR", stored.HomeCountry)
	assert.Equal(t, now, stored.HomeCountryRefreshedAt)

	result, err := refresher.RefreshAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &RefreshResult{Scanned: 3, Changed: 1}, result)

	idle, err := users.GetUser(ctx, "u_idle")
	require.NoError(t, err)
	assert.Equal(t, "DE", idle.HomeCountry)
	assert.Equal(t, now, idle.HomeCountryRefreshedAt)

	freshAfter, err := users.GetUser(ctx, "u_fresh")
	require.NoError(t, err)
	assert.Equal(t, "FR", freshAfter.HomeCountry)

	var user model.User
	require.NoError(t, db.First(&user, "user_id = ?", "u_stale").Error)
	assert.Equal(t, "FR", user.HomeCountry)
}
