package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/justestif/moodmusic/internal/moodmusic"
)

// Controller performs control actions. *moodmusic.Extension implements it.
type Controller interface {
	Control(ctx context.Context, action string) (moodmusic.Snapshot, error)
}

var _ Controller = (*moodmusic.Extension)(nil)

type controlRequest struct {
	Action string `json:"action"`
}

type controlReply struct {
	OK    bool                `json:"ok"`
	State *moodmusic.Snapshot `json:"state,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Serve answers control requests on prefix.control until ctx is done.
func (b *Bridge) Serve(ctx context.Context, ctrl Controller) error {
	subject := b.Subject("control")
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		b.reply(msg, b.handleControl(ctx, ctrl, msg))
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	b.logger.Info("serving control requests", "subject", subject)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		b.logger.Debug("unsubscribing", "subject", subject, "error", err)
	}
	return nil
}

func (b *Bridge) handleControl(ctx context.Context, ctrl Controller, msg *nats.Msg) controlReply {
	var req controlRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return controlReply{Error: "invalid control request: " + err.Error()}
	}

	logger := b.logger.With("action", req.Action)
	if msg.Header != nil {
		logger = logger.With("request_id", msg.Header.Get(RequestIDHeader))
	}

	state, err := ctrl.Control(ctx, req.Action)
	if err != nil {
		logger.Warn("control action failed", "error", err)
		return controlReply{State: &state, Error: err.Error()}
	}
	logger.Info("control action handled")
	return controlReply{OK: true, State: &state}
}

func (b *Bridge) reply(msg *nats.Msg, r controlReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		b.logger.Error("encoding control reply", "error", err)
		return
	}
	if err := b.conn.Publish(msg.Reply, data); err != nil {
		b.logger.Warn("sending control reply", "error", err)
	}
}
