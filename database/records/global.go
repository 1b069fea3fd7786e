// SPDX-License-Identifier: ice License 1.0

package records

import (
	"context"
	"sync"
	"time"

	"github.com/rangeforge/pulse/model"
)

var (
	globalDB struct {
		Client *dbClient
		Once   sync.Once
	}
)

func MustInit(url ...string) {
	target := ":memory:"

	if len(url) > 0 && url[0] != "" {
		target = url[0]
	}

	globalDB.Once.Do(func() {
		globalDB.Client = openDatabase(target, true)
	})
}

func SaveNotification(ctx context.Context, notification *model.Notification) error {
	return globalDB.Client.SaveNotification(ctx, notification)
}

func SelectNotifications(ctx context.Context, limit, offset int64) ([]*model.Notification, error) {
	return globalDB.Client.SelectNotifications(ctx, limit, offset)
}

func CountUnread(ctx context.Context) (int64, error) {
	return globalDB.Client.CountUnread(ctx)
}

func MarkNotificationsRead(ctx context.Context, ids []string) (int64, error) {
	return globalDB.Client.MarkNotificationsRead(ctx, ids)
}

func MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	return globalDB.Client.MarkAllNotificationsRead(ctx)
}

func DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	return globalDB.Client.DeleteExpired(ctx, olderThan)
}

func Clear(ctx context.Context) error {
	return globalDB.Client.Clear(ctx)
}
