// SPDX-License-Identifier: ice License 1.0

package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rand"

	"github.com/rangeforge/pulse/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func helperNewDatabase(t interface {
	Helper()
	Cleanup(func())
}) *dbClient {
	t.Helper()

	db := openDatabase(":memory:", true)
	t.Cleanup(func() { db.Close() })

	return db
}

func helperGenerateNotification(t *testing.T, db *dbClient, read bool) *model.Notification {
	t.Helper()

	notification := &model.Notification{
		ID:           uuid.NewString(),
		Kind:         "range_deployed",
		Title:        "Range deployed",
		Message:      uuid.NewString(),
		Severity:     model.SeveritySuccess,
		Timestamp:    time.Unix(time.Now().Unix()-rand.Int63n(10_000), 0).UTC(),
		Read:         read,
		ResourceType: "range",
		ResourceID:   fmt.Sprintf("range-%v", rand.Int31n(100)),
		Origin:       model.OriginServer,
	}
	require.NoError(t, db.SaveNotification(context.TODO(), notification))

	return notification
}

func TestSaveNotificationIsIdempotentByID(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	notification := helperGenerateNotification(t, db, false)

	err := db.SaveNotification(context.TODO(), notification)
	require.ErrorIs(t, err, ErrDuplicate)

	stored, err := db.SelectNotifications(context.TODO(), 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, notification, stored[0])
}

func TestSelectNotificationsOrderAndPagination(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	const total = 25
	for i := 0; i < total; i++ {
		helperGenerateNotification(t, db, false)
	}

	page1, err := db.SelectNotifications(context.TODO(), 10, 0)
	require.NoError(t, err)
	require.Len(t, page1, 10)
	page2, err := db.SelectNotifications(context.TODO(), 10, 10)
	require.NoError(t, err)
	require.Len(t, page2, 10)
	page3, err := db.SelectNotifications(context.TODO(), 10, 20)
	require.NoError(t, err)
	require.Len(t, page3, 5)

	all := append(append(page1, page2...), page3...)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].Timestamp.After(all[i-1].Timestamp),
			"notifications must be ordered newest first: %v after %v", all[i].Timestamp, all[i-1].Timestamp)
	}
}

func TestCountUnread(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	const unread, read = 7, 4
	for i := 0; i < unread; i++ {
		helperGenerateNotification(t, db, false)
	}
	for i := 0; i < read; i++ {
		helperGenerateNotification(t, db, true)
	}

	count, err := db.CountUnread(context.TODO())
	require.NoError(t, err)
	require.Equal(t, int64(unread), count)
}

func TestMarkNotificationsRead(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	n1 := helperGenerateNotification(t, db, false)
	n2 := helperGenerateNotification(t, db, false)
	helperGenerateNotification(t, db, false)

	rowsAffected, err := db.MarkNotificationsRead(context.TODO(), []string{n1.ID, n2.ID, "missing-id"})
	require.NoError(t, err)
	require.Equal(t, int64(2), rowsAffected)

	count, err := db.CountUnread(context.TODO())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	rowsAffected, err = db.MarkNotificationsRead(context.TODO(), []string{n1.ID})
	require.NoError(t, err)
	require.Zero(t, rowsAffected)

	rowsAffected, err = db.MarkNotificationsRead(context.TODO(), nil)
	require.NoError(t, err)
	require.Zero(t, rowsAffected)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	for i := 0; i < 5; i++ {
		helperGenerateNotification(t, db, false)
	}

	rowsAffected, err := db.MarkAllNotificationsRead(context.TODO())
	require.NoError(t, err)
	require.Equal(t, int64(5), rowsAffected)

	count, err := db.CountUnread(context.TODO())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()

	db := helperNewDatabase(t)
	cutoff := time.Now().Add(-time.Hour)
	old := &model.Notification{ID: uuid.NewString(), Timestamp: cutoff.Add(-time.Minute), Severity: model.SeverityInfo}
	fresh := &model.Notification{ID: uuid.NewString(), Timestamp: time.Now(), Severity: model.SeverityInfo}
	require.NoError(t, db.SaveNotification(context.TODO(), old))
	require.NoError(t, db.SaveNotification(context.TODO(), fresh))

	rowsAffected, err := db.DeleteExpired(context.TODO(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), rowsAffected)

	remaining, err := db.SelectNotifications(context.TODO(), 10, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, fresh.ID, remaining[0].ID)
}
