package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope for outbound notifications.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	EventType string          `json:"event_type"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SnapshotRefreshed summarizes a newly published snapshot.
type SnapshotRefreshed struct {
	SnapshotID  uuid.UUID `json:"snapshot_id"`
	GeneratedAt time.Time `json:"generated_at"`
	AssetCount  int       `json:"asset_count"`
	PairCount   int       `json:"pair_count"`
}

// NewSnapshotRefreshed builds the summary event for s.
func NewSnapshotRefreshed(s *Snapshot) SnapshotRefreshed {
	return SnapshotRefreshed{
		SnapshotID:  s.ID,
		GeneratedAt: s.GeneratedAt,
		AssetCount:  len(s.Assets),
		PairCount:   len(s.Pairs),
	}
}
