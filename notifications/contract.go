// SPDX-License-Identifier: ice License 1.0

package notifications

import (
	"context"
	"sync"
	stdlibtime "time"

	"github.com/rangeforge/pulse/model"
)

type (
	Config struct {
		Endpoint         string              `yaml:"endpoint"`
		MaxFeedSize      int                 `yaml:"maxFeedSize"`
		SnapshotInterval stdlibtime.Duration `yaml:"snapshotInterval"`
		SnapshotPageSize int64               `yaml:"snapshotPageSize"`
		RequestTimeout   stdlibtime.Duration `yaml:"requestTimeout"`
	}

	// Snapshot is an authoritative, paginated read of the server's persisted
	// notification record. UnreadCount covers the whole record, not just the
	// returned page.
	Snapshot struct {
		Notifications []*model.Notification `json:"notifications"`
		UnreadCount   int64                 `json:"unread_count"`
	}

	SnapshotClient interface {
		FetchSnapshot(ctx context.Context, limit, offset int64) (*Snapshot, error)
		MarkRead(ctx context.Context, ids []string) error
		MarkAllRead(ctx context.Context) error
	}

	// Store is the process-wide notification feed. It merges realtime-ingested
	// entries with snapshot fetches, deduplicates by id, bounds memory and
	// keeps the unread count derived from the feed itself. Construct one per
	// process and share it; construct a fresh one per test.
	Store struct {
		cfg    *Config
		client SnapshotClient

		wg sync.WaitGroup

		mx     sync.Mutex
		feed   []*model.Notification
		unread int
		// Unread entries the server reports beyond the fetched page. Keeps the
		// visible count honest when the durable record outgrows the feed cap.
		serverUnreadExtra int
		lastFetch         stdlibtime.Time
		fetching          bool
		closed            bool
	}
)

const (
	defaultMaxFeedSize      = 100
	defaultSnapshotInterval = 30 * stdlibtime.Second
	defaultSnapshotPageSize = 50
	defaultRequestTimeout   = 10 * stdlibtime.Second
)
