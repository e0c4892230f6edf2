package services

import (
	"context"
	"strings"

	"challenge-ladder/metrics"

	"go.uber.org/zap"
)

// Button is a quick-reply button; ID comes back as IncomingEvent.ReplyID.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListMessage struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Button string    `json:"button"`
	Rows   []ListRow `json:"rows"`
}

// Notifier delivers outbound messages to a player's contact address.
type Notifier interface {
	SendText(ctx context.Context, to, text string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to string, list ListMessage) error
}

// Message is an outbound notification queued during a transaction and sent
// once it commits.
type Message struct {
	To      string
	Text    string
	Buttons []Button
	List    *ListMessage
}

func textMsg(to, text string) Message { return Message{To: to, Text: text} }

func (m Message) kind() string {
	switch {
	case m.List != nil:
		return "list"
	case len(m.Buttons) > 0:
		return "buttons"
	}
	return "text"
}

// Deliver sends each message; failures are logged and counted, never retried.
func Deliver(ctx context.Context, n Notifier, log *zap.Logger, msgs []Message) {
	if n == nil {
		return
	}
	for _, m := range msgs {
		if m.To == "" {
			continue
		}
		var err error
		switch m.kind() {
		case "list":
			err = n.SendList(ctx, m.To, *m.List)
		case "buttons":
			err = n.SendButtons(ctx, m.To, m.Text, m.Buttons)
		default:
			err = n.SendText(ctx, m.To, m.Text)
		}
		if err != nil {
			metrics.NotificationFailures.WithLabelValues(m.kind()).Inc()
			log.Warn("notification failed", zap.String("to", m.To), zap.String("kind", m.kind()), zap.Error(err))
		}
	}
}

// LogNotifier writes outbound messages to the log. Used when no transport is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) SendText(_ context.Context, to, text string) error {
	n.Log.Info("📨 text", zap.String("to", to), zap.String("text", text))
	return nil
}

func (n *LogNotifier) SendButtons(_ context.Context, to, body string, buttons []Button) error {
	ids := make([]string, len(buttons))
	for i, b := range buttons {
		ids[i] = b.ID
	}
	n.Log.Info("📨 buttons", zap.String("to", to), zap.String("body", body), zap.String("buttons", strings.Join(ids, ",")))
	return nil
}

func (n *LogNotifier) SendList(_ context.Context, to string, list ListMessage) error {
	n.Log.Info("📨 list", zap.String("to", to), zap.String("title", list.Title), zap.String("body", list.Body), zap.Int("rows", len(list.Rows)))
	return nil
}
