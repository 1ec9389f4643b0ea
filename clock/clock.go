// Package clock computes elapsed work time from server-format timestamps
// and keeps a locally ticking display synchronized with server time despite
// network latency and client clock skew.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the timestamp format the server speaks, always UTC.
const Layout = "2006-01-02 15:04:05"

// SyncInterval is how often a continuously ticking display should re-derive
// its clock offset to bound drift accumulation.
const SyncInterval = 30 * time.Second

// Parse reads a server timestamp. An ISO "T" separator is tolerated and
// normalized to the standard space.
func Parse(ts string) (time.Time, error) {
	ts = strings.Replace(strings.TrimSpace(ts), "T", " ", 1)
	t, err := time.ParseInLocation(Layout, ts, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	return t, nil
}

// ElapsedSeconds returns the whole-second floor of remoteNow - remoteStart.
// Negative results from clock anomalies are passed through unclamped.
func ElapsedSeconds(remoteStart, remoteNow string) (int64, error) {
	start, err := Parse(remoteStart)
	if err != nil {
		return 0, err
	}
	now, err := Parse(remoteNow)
	if err != nil {
		return 0, err
	}
	return floorSeconds(now.Sub(start)), nil
}

// ElapsedSince returns the whole-second floor of at - remoteStart, with at
// taken on the local clock (converted to UTC).
func ElapsedSince(remoteStart string, at time.Time) (int64, error) {
	start, err := Parse(remoteStart)
	if err != nil {
		return 0, err
	}
	return floorSeconds(at.UTC().Sub(start)), nil
}

// Offset is the server-minus-local clock delta, captured once per sync and
// reused by every local tick so the display keeps counting without a
// network call.
type Offset struct {
	delta time.Duration
}

// NewOffset captures the offset between a server timestamp and the local
// instant at which it was received.
func NewOffset(remoteNow string, localAt time.Time) (Offset, error) {
	now, err := Parse(remoteNow)
	if err != nil {
		return Offset{}, err
	}
	return Offset{delta: now.Sub(localAt.UTC())}, nil
}

// Elapsed computes elapsed seconds for a tick at local time, corrected by
// the captured offset.
func (o Offset) Elapsed(remoteStart string, local time.Time) (int64, error) {
	start, err := Parse(remoteStart)
	if err != nil {
		return 0, err
	}
	return floorSeconds(local.UTC().Add(o.delta).Sub(start)), nil
}

// NowString formats the current instant as a server timestamp.
func NowString() string {
	return time.Now().UTC().Format(Layout)
}

func floorSeconds(d time.Duration) int64 {
	secs := d / time.Second
	if d < 0 && d%time.Second != 0 {
		secs--
	}
	return int64(secs)
}
