package migrations

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ParsesAsMigrationSource(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up)
	require.NoError(t, err)

	for _, table := range []string{
		"fraud_users", "fraud_cards", "fraud_devices", "fraud_transactions",
		"fraud_transaction_features", "fraud_risk_assessments", "fraud_review_actions",
	} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}

	assert.Contains(t, string(body), "as_of               BIGINT NOT NULL")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}
