// SPDX-License-Identifier: ice License 1.0

package notifications

import (
	"context"
	"log"
	"sort"
	stdlibtime "time"

	"github.com/cockroachdb/errors"

	"github.com/rangeforge/pulse/model"
)

func New(cfg *Config, client SnapshotClient) *Store {
	if cfg == nil {
		cfg = new(Config)
	}
	if cfg.MaxFeedSize == 0 {
		cfg.MaxFeedSize = defaultMaxFeedSize
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.SnapshotPageSize == 0 {
		cfg.SnapshotPageSize = defaultSnapshotPageSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return &Store{cfg: cfg, client: client}
}

// IngestRealtime appends a feed entry derived from a realtime event.
// Ingestion is idempotent by id: the same server-originated notification may
// arrive once over the socket and once in a later snapshot fetch.
func (s *Store) IngestRealtime(event *model.RealtimeEvent) {
	notification := model.NotificationFromEvent(event)
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return
	}
	for _, existing := range s.feed {
		if existing.ID == notification.ID {
			return
		}
	}
	s.feed = append([]*model.Notification{notification}, s.feed...)
	s.reduceLocked()
}

// LoadSnapshot reconciles the feed with the server's durable record. Skipped
// when the previous successful fetch is fresher than the configured interval,
// unless forced; this bounds redundant load from surfaces mounting
// concurrently. On fetch failure the feed keeps its prior state and a later
// throttled retry picks it up.
func (s *Store) LoadSnapshot(ctx context.Context, force bool) error {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()

		return nil
	}
	if !force && !s.lastFetch.IsZero() && stdlibtime.Since(s.lastFetch) < s.cfg.SnapshotInterval {
		s.mx.Unlock()

		return nil
	}
	if s.fetching {
		s.mx.Unlock()

		return nil
	}
	s.fetching = true
	s.mx.Unlock()
	defer func() {
		s.mx.Lock()
		s.fetching = false
		s.mx.Unlock()
	}()

	snapshot, err := s.client.FetchSnapshot(ctx, s.cfg.SnapshotPageSize, 0)
	if err != nil {
		return errors.Wrap(err, "failed to fetch notification snapshot")
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		// A fetch completing after teardown is simply discarded.
		return nil
	}

	// The snapshot is authoritative for everything the server persists:
	// server-origin entries are fully replaced, local-origin entries are
	// additive-only and survive the merge.
	merged := make([]*model.Notification, 0, len(snapshot.Notifications)+len(s.feed))
	seen := make(map[string]struct{}, cap(merged))
	for _, notification := range snapshot.Notifications {
		if _, duplicate := seen[notification.ID]; duplicate {
			continue
		}
		notification.Origin = model.OriginServer
		seen[notification.ID] = struct{}{}
		merged = append(merged, notification)
	}
	for _, notification := range s.feed {
		if notification.Origin != model.OriginLocal {
			continue
		}
		if _, duplicate := seen[notification.ID]; duplicate {
			continue
		}
		seen[notification.ID] = struct{}{}
		merged = append(merged, notification)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	s.feed = merged

	unreadInPage := 0
	for _, notification := range snapshot.Notifications {
		if !notification.Read {
			unreadInPage++
		}
	}
	s.serverUnreadExtra = int(snapshot.UnreadCount) - unreadInPage
	if s.serverUnreadExtra < 0 {
		s.serverUnreadExtra = 0
	}
	s.reduceLocked()
	s.lastFetch = stdlibtime.Now()

	return nil
}

// MarkRead optimistically flips read-state and recomputes the unread count
// immediately; a server-origin entry additionally triggers a best-effort
// background sync that is never rolled back on failure.
func (s *Store) MarkRead(ctx context.Context, id string) {
	s.mx.Lock()
	var target *model.Notification
	for _, notification := range s.feed {
		if notification.ID == id {
			target = notification

			break
		}
	}
	if target == nil || target.Read || s.closed {
		s.mx.Unlock()

		return
	}
	target.Read = true
	s.reduceLocked()
	syncNeeded := target.Origin == model.OriginServer
	if syncNeeded {
		// Registered while closed is still known false, so Close cannot
		// return before this sync does.
		s.wg.Add(1)
	}
	s.mx.Unlock()

	if syncNeeded {
		s.syncReadState(ctx, []string{id}, false)
	}
}

func (s *Store) MarkAllRead(ctx context.Context) {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()

		return
	}
	syncNeeded := s.serverUnreadExtra > 0
	for _, notification := range s.feed {
		if !notification.Read {
			if notification.Origin == model.OriginServer {
				syncNeeded = true
			}
			notification.Read = true
		}
	}
	s.serverUnreadExtra = 0
	s.reduceLocked()
	if syncNeeded {
		s.wg.Add(1)
	}
	s.mx.Unlock()

	if syncNeeded {
		s.syncReadState(ctx, nil, true)
	}
}

// Clear resets the local view. It does not call the server.
func (s *Store) Clear() {
	s.mx.Lock()
	s.feed = nil
	s.unread = 0
	s.serverUnreadExtra = 0
	s.mx.Unlock()
}

// Close discards further mutations and waits for in-flight background syncs.
func (s *Store) Close() {
	s.mx.Lock()
	s.closed = true
	s.mx.Unlock()
	s.wg.Wait()
}

func (s *Store) Feed() []*model.Notification {
	s.mx.Lock()
	defer s.mx.Unlock()
	feed := make([]*model.Notification, 0, len(s.feed))
	for _, notification := range s.feed {
		clone := *notification
		feed = append(feed, &clone)
	}

	return feed
}

func (s *Store) UnreadCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.unread
}

func (s *Store) LastFetch() stdlibtime.Time {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.lastFetch
}

// reduceLocked is the single funnel every mutation goes through: it enforces
// the cap with oldest-eviction and recomputes the unread count from the
// resulting sequence instead of maintaining a running counter, so the visible
// badge can never drift from the entries actually marked unread.
func (s *Store) reduceLocked() {
	if len(s.feed) > s.cfg.MaxFeedSize {
		s.feed = s.feed[:s.cfg.MaxFeedSize]
	}
	unread := 0
	for _, notification := range s.feed {
		if !notification.Read {
			unread++
		}
	}
	s.unread = unread + s.serverUnreadExtra
}

// syncReadState runs under a waitgroup slot already claimed by the caller
// while it held s.mx.
func (s *Store) syncReadState(ctx context.Context, ids []string, all bool) {
	go func() {
		defer s.wg.Done()
		// Best-effort: the caller's context may be gone by the time this runs.
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
		defer cancel()
		var err error
		if all {
			err = s.client.MarkAllRead(syncCtx)
		} else {
			err = s.client.MarkRead(syncCtx, ids)
		}
		if err != nil {
			// Read-state is eventually consistent with the server; the local
			// flip is never rolled back.
			log.Printf("WARN: background read-state sync failed: %v", err)
		}
	}()
}
