package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineMessageSpoolAndDrain(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	from := registerTestUser(t, db, "sender")
	to := registerTestUser(t, db, "recipient")

	require.NoError(t, db.SpoolOfflineMessage(ctx, from, to, "2026-07-31T00:00:00Z", "hey, you there?"))
	require.NoError(t, db.SpoolOfflineMessage(ctx, from, to, "2026-07-31T00:01:00Z", "guess not"))

	msgs, err := db.DrainOfflineMessages(ctx, to)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, from, msgs[0].FromUID)
	assert.Equal(t, "hey, you there?", msgs[0].Message)

	// Draining deletes: a second drain finds nothing left.
	msgs, err = db.DrainOfflineMessages(ctx, to)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOfflineMessageDrainIsPerRecipient(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	from := registerTestUser(t, db, "sender2")
	to1 := registerTestUser(t, db, "recipient1")
	to2 := registerTestUser(t, db, "recipient2")

	require.NoError(t, db.SpoolOfflineMessage(ctx, from, to1, "2026-07-31T00:00:00Z", "for you"))

	msgs, err := db.DrainOfflineMessages(ctx, to2)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = db.DrainOfflineMessages(ctx, to1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
