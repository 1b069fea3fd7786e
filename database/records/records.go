// SPDX-License-Identifier: ice License 1.0

package records

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/rangeforge/pulse/model"
)

const (
	selectDefaultLimit = 100
)

var (
	ErrDuplicate = errors.New("duplicate notification")
)

type databaseNotification struct {
	ID           string
	Kind         string
	Title        string
	Message      string
	Severity     string
	Timestamp    int64
	Read         bool
	ResourceType string
	ResourceID   string
}

func (db *dbClient) SaveNotification(ctx context.Context, notification *model.Notification) error {
	const stmt = `
insert into notifications (id, kind, title, message, severity, timestamp, read, resource_type, resource_id)
values (:id, :kind, :title, :message, :severity, :timestamp, :read, :resource_type, :resource_id)
on conflict (id) do nothing`

	rowsAffected, err := db.exec(ctx, stmt, &databaseNotification{
		ID:           notification.ID,
		Kind:         notification.Kind,
		Title:        notification.Title,
		Message:      notification.Message,
		Severity:     string(notification.Severity),
		Timestamp:    notification.Timestamp.Unix(),
		Read:         notification.Read,
		ResourceType: notification.ResourceType,
		ResourceID:   notification.ResourceID,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save notification %+v", notification)
	}
	if rowsAffected == 0 {
		return ErrDuplicate
	}

	return nil
}

func (db *dbClient) SelectNotifications(ctx context.Context, limit, offset int64) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = selectDefaultLimit
	}
	const stmt = `
select id, kind, title, message, severity, timestamp, read, resource_type, resource_id
from notifications
order by timestamp desc, id
limit ? offset ?`

	var rows []databaseNotification
	if err := db.SelectContext(ctx, &rows, stmt, limit, offset); err != nil {
		return nil, errors.Wrapf(err, "failed to select notifications (limit %v, offset %v)", limit, offset)
	}
	notifications := make([]*model.Notification, 0, len(rows))
	for i := range rows {
		notifications = append(notifications, rows[i].Notification())
	}

	return notifications, nil
}

func (n *databaseNotification) Notification() *model.Notification {
	return &model.Notification{
		ID:           n.ID,
		Kind:         n.Kind,
		Title:        n.Title,
		Message:      n.Message,
		Severity:     model.Severity(n.Severity),
		Timestamp:    time.Unix(n.Timestamp, 0).UTC(),
		Read:         n.Read,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		Origin:       model.OriginServer,
	}
}

func (db *dbClient) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	if err := db.GetContext(ctx, &count, `select count(1) from notifications where read = 0`); err != nil {
		return 0, errors.Wrap(err, "failed to count unread notifications")
	}

	return count, nil
}

func (db *dbClient) MarkNotificationsRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	stmt, args, err := sqlx.In(`update notifications set read = 1 where read = 0 and id in (?)`, ids)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to expand mark-read sql for %v ids", len(ids))
	}

	result, err := db.ExecContext(ctx, db.Rebind(stmt), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to mark notifications read: %+v", ids)
	}
	rowsAffected, err := result.RowsAffected()

	return rowsAffected, errors.Wrap(err, "failed to process rows affected for mark-read")
}

func (db *dbClient) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `update notifications set read = 1 where read = 0`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark all notifications read")
	}
	rowsAffected, err := result.RowsAffected()

	return rowsAffected, errors.Wrap(err, "failed to process rows affected for mark-all-read")
}

func (db *dbClient) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `delete from notifications where timestamp < ?`, olderThan.Unix())
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete notifications older than %v", olderThan)
	}
	rowsAffected, err := result.RowsAffected()

	return rowsAffected, errors.Wrap(err, "failed to process rows affected for delete expired")
}

func (db *dbClient) Clear(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `delete from notifications`)

	return errors.Wrap(err, "failed to clear notifications")
}
