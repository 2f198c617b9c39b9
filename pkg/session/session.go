// Package session orchestrates a conversation: window management,
// archival of evicted turns, retrieval of long-term context, and reply
// generation.
//
// The failure domains are deliberately independent. A broken archive
// pipeline or retrieval tier degrades memory, never the reply: those
// errors are logged and the generation proceeds without them. Only a
// missing owner or a generation failure surfaces to the caller.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/auth"
	"github.com/halfmoonlabs/engram/pkg/eventstream"
	"github.com/halfmoonlabs/engram/pkg/llm"
	"github.com/halfmoonlabs/engram/pkg/window"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant with long-term memory of this conversation."

// DefaultHistoryTokens bounds the window slice assembled into each
// generation request.
const DefaultHistoryTokens = 4000

// Bridge is the archival and retrieval surface the orchestrator uses.
type Bridge interface {
	Archive(ctx context.Context, ownerID string, turns []window.Turn) error
	RelevantContext(ctx context.Context, ownerID, query string) (string, bool, error)
}

// Config holds configuration for the orchestrator.
type Config struct {
	// SystemPrompt is the base system prompt. Defaults to
	// DefaultSystemPrompt.
	SystemPrompt string

	// HistoryTokens caps the estimated token total of the turns sent
	// with each generation request. The window may hold more; only the
	// newest turns under this budget travel. Defaults to
	// DefaultHistoryTokens.
	HistoryTokens int
}

// Orchestrator runs the send-message loop for one session.
type Orchestrator struct {
	config    Config
	auth      auth.Provider
	window    *window.Window
	bridge    Bridge
	generator llm.Generator
	publisher eventstream.Publisher
	logger    *zap.Logger
}

// New creates an orchestrator. publisher may be nil to disable events.
func New(cfg Config, authProvider auth.Provider, win *window.Window, bridge Bridge, generator llm.Generator, publisher eventstream.Publisher, logger *zap.Logger) (*Orchestrator, error) {
	if authProvider == nil {
		return nil, fmt.Errorf("auth provider cannot be nil")
	}
	if win == nil {
		return nil, fmt.Errorf("window cannot be nil")
	}
	if bridge == nil {
		return nil, fmt.Errorf("bridge cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryTokens <= 0 {
		cfg.HistoryTokens = DefaultHistoryTokens
	}
	return &Orchestrator{
		config:    cfg,
		auth:      authProvider,
		window:    win,
		bridge:    bridge,
		generator: generator,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// SendMessage appends the user's message, generates a reply, and appends
// it too. When onDelta is non-nil the reply streams through it; either
// way the full reply text is returned.
func (o *Orchestrator) SendMessage(ctx context.Context, content string, onDelta llm.StreamFunc) (string, error) {
	ownerID, ok := o.auth.CurrentUser()
	if !ok {
		return "", auth.ErrNoUser
	}

	userTurn, evicted := o.window.AddTurn(llm.RoleUser, content)
	o.archiveEvicted(ctx, ownerID, evicted)
	o.publish(ctx, ownerID, userTurn, len(evicted), onDelta != nil)

	system := o.config.SystemPrompt
	if retrieved, found := o.retrieve(ctx, ownerID, content); found {
		system = fmt.Sprintf("%s\n\nRelevant context from earlier in this conversation:\n%s", system, retrieved)
	}

	messages := o.messages()

	var reply string
	var err error
	if onDelta != nil {
		reply, err = o.generator.GenerateStream(ctx, system, messages, onDelta)
	} else {
		reply, err = o.generator.Generate(ctx, system, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}

	assistantTurn, evicted := o.window.AddTurn(llm.RoleAssistant, reply)
	o.archiveEvicted(ctx, ownerID, evicted)
	o.publish(ctx, ownerID, assistantTurn, len(evicted), onDelta != nil)

	return reply, nil
}

// ClearSession empties the window. When archiveTurns is set the cleared
// turns go through the archive pipeline first.
func (o *Orchestrator) ClearSession(ctx context.Context, archiveTurns bool) error {
	ownerID, ok := o.auth.CurrentUser()
	if !ok {
		return auth.ErrNoUser
	}

	cleared := o.window.Clear()
	if !archiveTurns || len(cleared) == 0 {
		return nil
	}
	if err := o.bridge.Archive(ctx, ownerID, cleared); err != nil {
		return fmt.Errorf("archiving cleared session: %w", err)
	}
	o.publishArchived(ctx, ownerID, len(cleared))
	return nil
}

// messages assembles the newest window turns fitting the history budget,
// oldest first. Older turns stay in the window; retrieval brings them
// back as context when they matter.
func (o *Orchestrator) messages() []llm.Message {
	turns := o.window.RecentTurns(o.config.HistoryTokens)
	messages := make([]llm.Message, len(turns))
	for i, t := range turns {
		messages[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return messages
}

// archiveEvicted pushes evicted turns into long-term storage. Failures
// lose memory, not the conversation.
func (o *Orchestrator) archiveEvicted(ctx context.Context, ownerID string, evicted []window.Turn) {
	if len(evicted) == 0 {
		return
	}
	if err := o.bridge.Archive(ctx, ownerID, evicted); err != nil {
		o.logger.Warn("failed to archive evicted turns",
			zap.String("owner_id", ownerID),
			zap.Int("turns", len(evicted)),
			zap.Error(err),
		)
		return
	}
	o.publishArchived(ctx, ownerID, len(evicted))
}

// retrieve fetches long-term context best effort.
func (o *Orchestrator) retrieve(ctx context.Context, ownerID, query string) (string, bool) {
	text, found, err := o.bridge.RelevantContext(ctx, ownerID, query)
	if err != nil {
		o.logger.Warn("long-term retrieval failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return "", false
	}
	return text, found
}

func (o *Orchestrator) publish(ctx context.Context, ownerID string, turn window.Turn, evictedCount int, streaming bool) {
	if o.publisher == nil {
		return
	}
	event := &eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now(),
		OwnerID:       ownerID,
		Turn: eventstream.TurnMeta{
			TurnID:    turn.ID,
			Role:      turn.Role,
			Tokens:    turn.Tokens,
			Streaming: streaming,
			CreatedAt: turn.CreatedAt,
		},
		Archive: eventstream.ArchiveMeta{EvictedTurns: evictedCount},
	}
	if err := o.publisher.PublishTurn(ctx, event); err != nil {
		o.logger.Warn("failed to publish turn event",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publishArchived(ctx context.Context, ownerID string, turnCount int) {
	if o.publisher == nil {
		return
	}
	event := &eventstream.TurnsArchivedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnsArchived,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now(),
		OwnerID:       ownerID,
		TurnCount:     turnCount,
	}
	if err := o.publisher.PublishTurnsArchived(ctx, event); err != nil {
		o.logger.Warn("failed to publish archive event",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	}
}
