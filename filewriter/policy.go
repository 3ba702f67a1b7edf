// Package filewriter composes an Encoder Port (codec.BatchBuilder +
// codec.BatchBufferingWriter) with a multipart.Manager into a single
// per-file writer, and defines the rolling policy that decides when that
// file should be closed in favor of a fresh one.
package filewriter

import "time"

// Stats tracks the byte and part counters a RollingPolicy evaluates, plus
// the timestamps of the first and most recent write to the current file.
type Stats struct {
	BytesWritten int
	PartsWritten int
	FirstWriteAt time.Time
	LastWriteAt  time.Time
}

// RollingPolicy decides whether the active file should be closed and
// replaced with a new one.
type RollingPolicy interface {
	ShouldRoll(stats Stats, now time.Time) bool
}

// PartLimit rolls once at least that many parts of a file have been handed
// off for upload (Stats.PartsWritten). This is the one policy that is always present: an object store's
// multipart upload has a hard ceiling on part count.
type PartLimit int

func (p PartLimit) ShouldRoll(stats Stats, now time.Time) bool {
	return stats.PartsWritten >= int(p)
}

// SizeLimit rolls once a file has written at least Limit bytes.
type SizeLimit int

func (s SizeLimit) ShouldRoll(stats Stats, now time.Time) bool {
	return stats.BytesWritten >= int(s)
}

// InactivityDuration rolls a file that has gone quiet: no write in at least
// Duration.
type InactivityDuration time.Duration

func (d InactivityDuration) ShouldRoll(stats Stats, now time.Time) bool {
	if stats.LastWriteAt.IsZero() {
		return false
	}
	return now.Sub(stats.LastWriteAt) >= time.Duration(d)
}

// RolloverDuration rolls a file unconditionally once it has been open for
// at least Duration, regardless of write activity.
type RolloverDuration time.Duration

func (d RolloverDuration) ShouldRoll(stats Stats, now time.Time) bool {
	if stats.FirstWriteAt.IsZero() {
		return false
	}
	return now.Sub(stats.FirstWriteAt) >= time.Duration(d)
}

// AnyOf rolls as soon as any one of its policies says to roll.
type AnyOf []RollingPolicy

func (a AnyOf) ShouldRoll(stats Stats, now time.Time) bool {
	for _, p := range a {
		if p.ShouldRoll(stats, now) {
			return true
		}
	}
	return false
}

// DefaultPartLimit is the hard ceiling applied even when no explicit part
// limit is configured; most object stores cap multipart uploads at 10000
// parts and this leaves ample headroom.
const DefaultPartLimit = 1000

// DefaultRolloverDuration is applied when no explicit rollover interval is
// configured, ensuring files are eventually closed even under light load.
const DefaultRolloverDuration = 30 * time.Second

// Settings mirrors the user-facing rolling-policy configuration knobs.
type Settings struct {
	MaxParts                 int
	TargetFileSize           int
	InactivityRolloverSeconds int
	RolloverSeconds          int
}

// FromSettings builds the compound RollingPolicy spec.md's configuration
// knobs describe: a hard PartLimit (defaulted if unset), an optional
// SizeLimit, an optional InactivityDuration, and an always-present
// RolloverDuration (defaulted if unset).
func FromSettings(s Settings) RollingPolicy {
	partLimit := s.MaxParts
	if partLimit <= 0 {
		partLimit = DefaultPartLimit
	}
	policies := AnyOf{PartLimit(partLimit)}

	if s.TargetFileSize > 0 {
		policies = append(policies, SizeLimit(s.TargetFileSize))
	}
	if s.InactivityRolloverSeconds > 0 {
		policies = append(policies, InactivityDuration(time.Duration(s.InactivityRolloverSeconds)*time.Second))
	}

	rollover := s.RolloverSeconds
	if rollover <= 0 {
		return append(policies, RolloverDuration(DefaultRolloverDuration))
	}
	return append(policies, RolloverDuration(time.Duration(rollover)*time.Second))
}
