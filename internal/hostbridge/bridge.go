// Package hostbridge connects the companion to the chat host over NATS.
package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/justestif/moodmusic/internal/moodmusic"
)

// RequestIDHeader carries a per-request id for tracing across the bridge.
const RequestIDHeader = "Moodmusic-Request-Id"

// Conn is the part of *nats.Conn the bridge uses.
type Conn interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

var _ Conn = (*nats.Conn)(nil)

// RemoteError is an error reported by the host in a reply.
type RemoteError struct {
	Subject string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("host %s: %s", e.Subject, e.Message)
}

// Bridge implements moodmusic.Host with NATS request/reply.
type Bridge struct {
	conn    Conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ moodmusic.Host = (*Bridge)(nil)

// New creates a Bridge. Subjects are prefix.<name>. timeout bounds every
// request except model generation, which is bounded by the caller.
func New(conn Conn, prefix string, timeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		conn:    conn,
		prefix:  strings.TrimSuffix(prefix, "."),
		timeout: timeout,
		logger:  logger,
	}
}

// Subject returns the full subject for name.
func (b *Bridge) Subject(name string) string {
	return b.prefix + "." + name
}

type historyRequest struct {
	N int `json:"n"`
}

type turnPayload struct {
	Speaker string `json:"speaker"`
	IsUser  bool   `json:"is_user"`
	Text    string `json:"text"`
}

type historyReply struct {
	Turns []turnPayload `json:"turns"`
}

// RecentHistory asks the host for the last n chat turns, oldest first.
func (b *Bridge) RecentHistory(ctx context.Context, n int) ([]moodmusic.Turn, error) {
	var reply historyReply
	if err := b.request(ctx, b.timeout, "history", historyRequest{N: n}, &reply); err != nil {
		return nil, err
	}

	turns := make([]moodmusic.Turn, len(reply.Turns))
	for i, t := range reply.Turns {
		turns[i] = moodmusic.Turn{Speaker: t.Speaker, IsUser: t.IsUser, Text: t.Text}
	}
	return turns, nil
}

// GenerationInProgress reports whether the host is generating a reply.
func (b *Bridge) GenerationInProgress(ctx context.Context) (bool, error) {
	var reply struct {
		InProgress bool `json:"in_progress"`
	}
	if err := b.request(ctx, b.timeout, "generation.status", struct{}{}, &reply); err != nil {
		return false, err
	}
	return reply.InProgress, nil
}

type profilePayload struct {
	Name string `json:"name"`
}

// ActiveProfile returns the host's active profile name, "" if it has none.
func (b *Bridge) ActiveProfile(ctx context.Context) (string, error) {
	var reply profilePayload
	if err := b.request(ctx, b.timeout, "profile.get", struct{}{}, &reply); err != nil {
		return "", err
	}
	return reply.Name, nil
}

// SetActiveProfile asks the host to select a profile. The host may accept
// the request without applying it; callers verify with ActiveProfile.
func (b *Bridge) SetActiveProfile(ctx context.Context, name string) error {
	var reply struct {
		OK bool `json:"ok"`
	}
	subject := "profile.set"
	if err := b.request(ctx, b.timeout, subject, profilePayload{Name: name}, &reply); err != nil {
		return err
	}
	if !reply.OK {
		return &RemoteError{Subject: b.Subject(subject), Message: "profile switch rejected"}
	}
	return nil
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Quiet  bool   `json:"quiet"`
	Source string `json:"source"`
}

// InvokeModel asks the host to run its model. An empty prompt uses the
// host's active profile prompt.
func (b *Bridge) InvokeModel(ctx context.Context, prompt string, opts moodmusic.ModelOptions) (string, error) {
	var reply struct {
		Text string `json:"text"`
	}
	req := generateRequest{Prompt: prompt, Quiet: opts.Quiet, Source: opts.Source}
	if err := b.request(ctx, 0, "model.generate", req, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

type notifyPayload struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	Persistent bool   `json:"persistent"`
}

// Notify publishes a user notification.
func (b *Bridge) Notify(ctx context.Context, n moodmusic.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before notify: %w", err)
	}
	data, err := json.Marshal(notifyPayload{Level: string(n.Level), Message: n.Message, Persistent: n.Persistent})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := b.conn.Publish(b.Subject("notify"), data); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// eventPayload accepts message_id as a JSON number or string.
type eventPayload struct {
	MessageID json.Number `json:"message_id"`
	SwipeID   int         `json:"swipe_id"`
	IsUser    bool        `json:"is_user"`
}

// Subscribe delivers host events of kind to handler.
func (b *Bridge) Subscribe(kind moodmusic.EventKind, handler func(moodmusic.Event)) (func(), error) {
	subject := b.Subject("events." + string(kind))
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var p eventPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			b.logger.Warn("ignoring malformed host event", "subject", msg.Subject, "error", err)
			return
		}
		handler(moodmusic.Event{
			Kind:      kind,
			MessageID: p.MessageID.String(),
			SwipeID:   p.SwipeID,
			IsUser:    p.IsUser,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribing", "subject", subject, "error", err)
		}
	}, nil
}

// request sends req to prefix.name and decodes the reply into reply.
// A non-zero timeout further bounds ctx.
func (b *Bridge) request(ctx context.Context, timeout time.Duration, name string, req, reply any) error {
	subject := b.Subject(name)

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", subject, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	id := uuid.NewString()
	msg.Header.Set(RequestIDHeader, id)

	resp, err := b.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("request %s: chat host is not listening: %w", subject, err)
		}
		return fmt.Errorf("request %s: %w", subject, err)
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Data, &envelope); err != nil {
		return fmt.Errorf("decoding %s reply: %w", subject, err)
	}
	if envelope.Error != "" {
		return &RemoteError{Subject: subject, Message: envelope.Error}
	}
	if err := json.Unmarshal(resp.Data, reply); err != nil {
		return fmt.Errorf("decoding %s reply: %w", subject, err)
	}

	b.logger.Debug("host request", "subject", subject, "request_id", id)
	return nil
}
