package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is
	// persisted to the active window.
	EventTypeTurnPersisted = "engram.turn.persisted"

	// EventTypeTurnsArchived is emitted after evicted turns are archived
	// to long-term storage.
	EventTypeTurnsArchived = "engram.turns.archived"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted
// conversation turn.
type TurnPersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	OwnerID       string      `json:"owner_id"`
	Turn          TurnMeta    `json:"turn"`
	Archive       ArchiveMeta `json:"archive"`
}

// TurnMeta describes the persisted turn without carrying its content.
type TurnMeta struct {
	TurnID    string    `json:"turn_id"`
	Role      string    `json:"role"`
	Tokens    int       `json:"tokens"`
	Streaming bool      `json:"streaming"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveMeta describes the eviction triggered by the turn, if any.
type ArchiveMeta struct {
	EvictedTurns int `json:"evicted_turns"`
}

// TurnsArchivedEvent is a transport-neutral event payload for turns
// written to long-term storage.
type TurnsArchivedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	OwnerID       string    `json:"owner_id"`
	TurnCount     int       `json:"turn_count"`
}
