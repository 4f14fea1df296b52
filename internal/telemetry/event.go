// Package telemetry forwards instance lifecycle events to external sinks. Each
// sink is an extension module: it subscribes to ready, error and destroy when
// constructed and publishes from a background worker.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "PlayCore/internal/errors"
	"PlayCore/pkg/module"
)

// Event 是一条对外发布的生命周期事件。
type Event struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"event"`
	Format     string    `json:"format,omitempty"`
	Source     string    `json:"source,omitempty"`
	Controller string    `json:"controller,omitempty"`
	Player     string    `json:"player,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher 将事件写入某个外部通道。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Encode 返回事件的 JSON 编码。
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent 从所属实例的当前状态构造事件。
func NewEvent(owner module.Owner, name string, payload any) Event {
	ev := Event{ID: uuid.NewString(), Name: name, OccurredAt: time.Now().UTC()}
	if owner != nil {
		ev.InstanceID = owner.ID()
		if c := owner.Controller(); c != nil {
			ev.Controller = c.Name()
		}
		if p := owner.Player(); p != nil {
			ev.Player = p.Name()
		}
		if format, backend := owner.Media(); backend != nil {
			ev.Format = format
			ev.Source = backend.Source().URL
		}
	}
	if err, ok := payload.(error); ok && err != nil {
		ev.Error = err.Error()
		ev.ErrorCode = string(xerrors.CodeOf(err))
		ev.Severity = string(xerrors.SeverityOf(err))
	}
	return ev
}
