package services

import "go.uber.org/zap"

// Change actions emitted after successful mutations.
const (
	ActionPlace  = "place"
	ActionUpdate = "update"
	ActionRemove = "remove"
	ActionDelete = "delete_structure"
)

// ChangeEvent describes a committed mutation for downstream consumers
// (notification fan-out lives outside this module).
type ChangeEvent struct {
	Action        string   `json:"action"`
	ProjetID      uint     `json:"projet_id"`
	ArticleID     uint     `json:"article_id,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// EventSink receives change events fire-and-forget: the mutation is
// already durable when Emit runs and never depends on the sink succeeding.
type EventSink interface {
	Emit(ev ChangeEvent)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(ChangeEvent) {}

// LogSink writes events to the process logger; the default sink when no
// broadcaster is wired in.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Emit(ev ChangeEvent) {
	if s.Log == nil {
		return
	}
	s.Log.Info("change event",
		zap.String("action", ev.Action),
		zap.Uint("projet_id", ev.ProjetID),
		zap.Uint("article_id", ev.ArticleID),
		zap.Strings("changed_fields", ev.ChangedFields),
	)
}
