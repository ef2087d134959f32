package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/testutil"
)

const (
	base   = testutil.BaseTime
	minute = testutil.Minute
)

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	tx := testutil.NewTransaction("tx_1", "u1", base, testutil.WithAmount(250))
	require.NoError(t, repo.Create(ctx, tx))

	got, err := repo.GetByID(ctx, "tx_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Amount))
	assert.False(t, got.IsFraud)
	assert.Nil(t, got.FraudReason)

	err = repo.Create(ctx, testutil.NewTransaction("tx_1", "u1", base))
	assert.ErrorIs(t, err, ErrTransactionDuplicate)

	_, err = repo.GetByID(ctx, "tx_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestTransactionRepository_CountVelocity(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	anchor := base + 24*60*minute
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_old", "u1", anchor-24*60*minute-1), // 窗口外
		testutil.NewTransaction("tx_24h", "u1", anchor-24*60*minute),   // 24h 边界
		testutil.NewTransaction("tx_1h", "u1", anchor-60*minute),       // 1h 边界
		testutil.NewTransaction("tx_5m", "u1", anchor-5*minute),        // 5m 边界
		testutil.NewTransaction("tx_anchor", "u1", anchor),
		testutil.NewTransaction("tx_future", "u1", anchor+1),
		testutil.NewTransaction("tx_other", "u2", anchor),
	)

	counts, err := repo.CountVelocity(ctx, "u1", anchor, anchor-5*minute, anchor-60*minute, anchor-24*60*minute)
	require.NoError(t, err)

	assert.Equal(t, int64(2), counts.Count5m)
	assert.Equal(t, int64(3), counts.Count1h)
	assert.Equal(t, int64(4), counts.Count24h)
	assert.LessOrEqual(t, counts.Count5m, counts.Count1h)
	assert.LessOrEqual(t, counts.Count1h, counts.Count24h)
}

func TestTransactionRepository_UserAverageAmount(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	avg, err := repo.UserAverageAmount(ctx, "u1", base)
	require.NoError(t, err)
	assert.True(t, avg.IsZero())

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithAmount(100)),
		testutil.NewTransaction("tx_2", "u1", base+minute, testutil.WithAmount(200)),
		testutil.NewTransaction("tx_3", "u1", base+2*minute, testutil.WithAmount(900)),
	)

	avg, err = repo.UserAverageAmount(ctx, "u1", base+minute)
	require.NoError(t, err)
	assert.Equal(t, "150", avg.String())

	avg, err = repo.UserAverageAmount(ctx, "u1", base+2*minute)
	require.NoError(t, err)
	assert.Equal(t, "400", avg.String())
}

func TestTransactionRepository_DeviceUserCount(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithDevice("dev_shared")),
		testutil.NewTransaction("tx_2", "u1", base+minute, testutil.WithDevice("dev_shared")),
		testutil.NewTransaction("tx_3", "u2", base-48*60*minute, testutil.WithDevice("dev_shared")),
		testutil.NewTransaction("tx_4", "u3", base+99*60*minute, testutil.WithDevice("dev_shared")),
		testutil.NewTransaction("tx_5", "u4", base, testutil.WithDevice("dev_other")),
	)

	count, err := repo.DeviceUserCount(ctx, "dev_shared", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	upTo := base + minute
	count, err = repo.DeviceUserCount(ctx, "dev_shared", &upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.DeviceUserCount(ctx, "dev_unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestTransactionRepository_FraudCounts(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithMerchant("ShadyShop", "gift_cards"), testutil.WithFraud()),
		testutil.NewTransaction("tx_2", "u2", base+minute, testutil.WithMerchant("ShadyShop", "gift_cards")),
		testutil.NewTransaction("tx_3", "u3", base+2*minute, testutil.WithMerchant("ShadyShop", "gift_cards"), testutil.WithFraud()),
		testutil.NewTransaction("tx_4", "u4", base+3*minute, testutil.WithMerchant("GiftHub", "gift_cards")),
	)

	all, err := repo.MerchantFraudCounts(ctx, "ShadyShop", nil)
	require.NoError(t, err)
	assert.Equal(t, FraudCounts{Total: 3, Fraud: 2}, all)
	assert.InDelta(t, 2.0/3.0, all.Rate(), 1e-12)

	upTo := base + minute
	causal, err := repo.MerchantFraudCounts(ctx, "ShadyShop", &upTo)
	require.NoError(t, err)
	assert.Equal(t, FraudCounts{Total: 2, Fraud: 1}, causal)

	category, err := repo.CategoryFraudCounts(ctx, "gift_cards", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, category.Rate())

	none, err := repo.MerchantFraudCounts(ctx, "NewMerchant", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, none.Rate())
}

func TestTransactionRepository_ModeCountry(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	country, err := repo.ModeCountry(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, country)

	// 并列时取最早出现的国家
	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base, testutil.WithCountry("GB")),
		testutil.NewTransaction("tx_2", "u1", base+minute, testutil.WithCountry("US")),
		testutil.NewTransaction("tx_3", "u1", base+2*minute, testutil.WithCountry("US")),
		testutil.NewTransaction("tx_4", "u1", base+3*minute, testutil.WithCountry("GB")),
	)
	country, err = repo.ModeCountry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "GB", country)

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_5", "u1", base+4*minute, testutil.WithCountry("US")),
	)
	country, err = repo.ModeCountry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "US", country)
}

func TestTransactionRepository_MarkConfirmedFraud(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	testutil.InsertTransactions(t, db, testutil.NewTransaction("tx_1", "u1", base))

	require.NoError(t, repo.MarkConfirmedFraud(ctx, "tx_1"))
	got, err := repo.GetByID(ctx, "tx_1")
	require.NoError(t, err)
	assert.True(t, got.IsFraud)
	require.NotNil(t, got.FraudReason)
	assert.Equal(t, model.FraudReasonConfirmedByReview, *got.FraudReason)

	assert.ErrorIs(t, repo.MarkConfirmedFraud(ctx, "tx_missing"), ErrTransactionNotFound)
}

func TestTransactionRepository_ListAndMissingFeatures(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewTransactionRepository(db)
	features := NewFeatureRepository(db)
	ctx := context.Background()

	testutil.InsertTransactions(t, db,
		testutil.NewTransaction("tx_1", "u1", base+2*minute),
		testutil.NewTransaction("tx_2", "u1", base),
		testutil.NewTransaction("tx_3", "u2", base+minute, testutil.WithFraud()),
	)
	require.NoError(t, features.Upsert(ctx, &model.FeatureRecord{TransactionID: "tx_2"}))

	missing, err := repo.ListMissingFeatures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "tx_3", missing[0].TransactionID)
	assert.Equal(t, "tx_1", missing[1].TransactionID)

	list, err := repo.List(ctx, &TransactionFilter{UserID: "u1"}, NewPagination(0, 0))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx_1", list[0].TransactionID)

	fraud := true
	list, err = repo.List(ctx, &TransactionFilter{IsFraud: &fraud}, NewPagination(10, 0))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tx_3", list[0].TransactionID)

	totals, err := repo.FraudTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, FraudCounts{Total: 3, Fraud: 1}, totals)
}

func TestNewPagination_Bounds(t *testing.T) {
	p := NewPagination(0, -5)
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)

	p = NewPagination(10000, 20)
	assert.Equal(t, 500, p.Limit)
	assert.Equal(t, 20, p.Offset)
}
