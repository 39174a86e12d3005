package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.RegisterUser(ctx, NewUser{Nickname: "hank", Email: "h@x.com", Password: "pw"})
	require.NoError(t, err)

	known, err := db.DeviceInList(ctx, uid, "dev-1")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, db.DeviceAdd(ctx, uid, "dev-1"))

	known, err = db.DeviceInList(ctx, uid, "dev-1")
	require.NoError(t, err)
	assert.True(t, known)

	// Re-adding is a no-op and doesn't disturb the login counter.
	require.NoError(t, db.DeviceAdd(ctx, uid, "dev-1"))
	require.NoError(t, db.DeviceIncLogins(ctx, uid, "dev-1"))
	require.NoError(t, db.DeviceIncLogins(ctx, uid, "dev-1"))

	// A never-seen device/uid pair is created with count 1 on first increment.
	require.NoError(t, db.DeviceIncLogins(ctx, uid, "dev-2"))
	known, err = db.DeviceInList(ctx, uid, "dev-2")
	require.NoError(t, err)
	assert.True(t, known)
}
