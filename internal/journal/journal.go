// Package journal records received device events and notices when the
// kernel sequence numbers skip, which means events were lost.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/Hara602/devtree/internal/model"
	"github.com/Hara602/devtree/internal/store"
	"github.com/Hara602/devtree/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Journal appends events of one watcher session. It is not safe for
// concurrent use.
type Journal struct {
	db      *store.DB
	session string
	last    uint64
	gaps    uint64
}

// New starts a session with a fresh id.
func New(db *store.DB) *Journal {
	return &Journal{db: db, session: uuid.NewString()}
}

// Session returns the id events of this journal are stored under.
func (j *Journal) Session() string { return j.session }

// Gaps returns the number of sequence numbers skipped so far.
func (j *Journal) Gaps() uint64 { return j.gaps }

// Record stores ev and returns how many sequence numbers were skipped
// since the previous event. Events without a sequence number, such as
// those from the startup scan, are stored without a check.
//
// Sequence numbers count every kernel uevent, so socket filters alone
// produce gaps; they are only meaningful for unfiltered monitors.
func (j *Journal) Record(ctx context.Context, ev model.DeviceEvent) (uint64, error) {
	var gap uint64
	if ev.Seqnum != 0 {
		if j.last != 0 && ev.Seqnum > j.last+1 {
			gap = ev.Seqnum - j.last - 1
			j.gaps += gap
			sysutil.Log.Warn("uevent sequence gap",
				zap.Uint64("after", j.last),
				zap.Uint64("seqnum", ev.Seqnum),
				zap.Uint64("missing", gap))
		}
		if ev.Seqnum > j.last {
			j.last = ev.Seqnum
		}
	}

	ts := ev.TimeStamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (session, seqnum, action, syspath, subsystem, devnode, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.session, int64(ev.Seqnum), ev.Action, ev.Syspath, ev.Subsystem, ev.DevicePath, ts.UnixNano())
	if err != nil {
		return gap, fmt.Errorf("recording event: %w", err)
	}
	return gap, nil
}

// Entry is one stored event.
type Entry struct {
	Seqnum     uint64
	Action     string
	Syspath    string
	Subsystem  string
	DevicePath string
	ReceivedAt time.Time
}

// Events returns the events of session in the order they were recorded.
func (j *Journal) Events(ctx context.Context, session string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seqnum, action, syspath, subsystem, devnode, received_at
		FROM events WHERE session = ? ORDER BY id`, session)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var seqnum, received int64
		if err := rows.Scan(&seqnum, &e.Action, &e.Syspath, &e.Subsystem, &e.DevicePath, &received); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Seqnum = uint64(seqnum)
		e.ReceivedAt = time.Unix(0, received)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return entries, nil
}
