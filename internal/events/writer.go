package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the engine.
const (
	UserRegistered   = "user.registered"
	SessionStarted   = "session.started"
	SessionPaused    = "session.paused"
	SessionResumed   = "session.resumed"
	SessionEnded     = "session.ended"
	ProblemLogged    = "problem.logged"
	QuestCreated     = "quest.created"
	QuestProgressed  = "quest.progressed"
	QuestCompleted   = "quest.completed"
	QuestDiscarded   = "quest.discarded"
	QuestFailed      = "quest.failed"
	LayerAdvanced    = "user.layer.advanced"
	WhistlePromoted  = "user.whistle.promoted"
	AchievementAdded = "achievement.unlocked"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append records an event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, nullable(userID), entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
