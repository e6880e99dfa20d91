package election

import (
	"maps"
	"time"
)

// LeaderInfo describes a lease held by a participant.
// Values are treated as immutable; use the With methods to derive a changed copy.
type LeaderInfo struct {
	ParticipantID string
	AcquiredAt    time.Time
	ExpiresAt     time.Time
	Metadata      map[string]string
}

// NewLeaderInfo builds a LeaderInfo, copying the metadata.
func NewLeaderInfo(participantID string, acquiredAt, expiresAt time.Time, metadata map[string]string) LeaderInfo {
	return LeaderInfo{
		ParticipantID: participantID,
		AcquiredAt:    acquiredAt,
		ExpiresAt:     expiresAt,
		Metadata:      maps.Clone(metadata),
	}
}

// IsValid reports whether the lease is still live at now.
func (l LeaderInfo) IsValid(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// TimeToExpiry returns the time left on the lease at now. It is negative once expired.
func (l LeaderInfo) TimeToExpiry(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

// WithExpiresAt returns a copy with a new expiry.
func (l LeaderInfo) WithExpiresAt(expiresAt time.Time) LeaderInfo {
	return NewLeaderInfo(l.ParticipantID, l.AcquiredAt, expiresAt, l.Metadata)
}

// WithMetadata returns a copy with replaced metadata.
func (l LeaderInfo) WithMetadata(metadata map[string]string) LeaderInfo {
	return NewLeaderInfo(l.ParticipantID, l.AcquiredAt, l.ExpiresAt, metadata)
}

// Equal compares two leases structurally. A nil and an empty metadata map are equal.
func (l LeaderInfo) Equal(other LeaderInfo) bool {
	return l.ParticipantID == other.ParticipantID &&
		l.AcquiredAt.Equal(other.AcquiredAt) &&
		l.ExpiresAt.Equal(other.ExpiresAt) &&
		maps.Equal(l.Metadata, other.Metadata)
}

func (l *LeaderInfo) clone() *LeaderInfo {
	if l == nil {
		return nil
	}
	var c = NewLeaderInfo(l.ParticipantID, l.AcquiredAt, l.ExpiresAt, l.Metadata)
	return &c
}

func participantOf(l *LeaderInfo) string {
	if l == nil {
		return ""
	}
	return l.ParticipantID
}

// LeadershipChangedEvent is delivered to subscribers on every leadership transition.
type LeadershipChangedEvent struct {
	IsLeader bool
	Previous *LeaderInfo
	Current  *LeaderInfo
}

// LeadershipGained reports whether the participant became leader in this transition.
func (e LeadershipChangedEvent) LeadershipGained() bool {
	return e.IsLeader && participantOf(e.Previous) != participantOf(e.Current)
}

// LeadershipLost reports whether the participant stopped leading in this transition.
func (e LeadershipChangedEvent) LeadershipLost() bool {
	return !e.IsLeader && e.Previous != nil
}

// LeaderChanged reports whether the leading participant differs between Previous and Current.
func (e LeadershipChangedEvent) LeaderChanged() bool {
	return participantOf(e.Previous) != participantOf(e.Current)
}
