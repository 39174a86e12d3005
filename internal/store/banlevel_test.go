package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanLevelDefaultsToZero(t *testing.T) {
	db := openTestDB(t)
	level, err := db.BanLevel(context.Background(), 424242)
	require.NoError(t, err)
	assert.Zero(t, level)
}

func TestSetBanLevelUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uid := registerTestUser(t, db, "banneduser")

	require.NoError(t, db.SetBanLevel(ctx, uid, 2))
	level, err := db.BanLevel(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	require.NoError(t, db.SetBanLevel(ctx, uid, 5))
	level, err = db.BanLevel(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 5, level)
}
