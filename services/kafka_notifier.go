package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboundEnvelope is published for each outbound message. A delivery service
// downstream turns it into a channel-specific API call.
type OutboundEnvelope struct {
	Type    string       `json:"type"` // text, buttons, list
	To      string       `json:"to"`
	Text    string       `json:"text,omitempty"`
	Buttons []Button     `json:"buttons,omitempty"`
	List    *ListMessage `json:"list,omitempty"`
	SentAt  time.Time    `json:"sent_at"`
}

// KafkaNotifier publishes outbound messages to a topic keyed by recipient, so
// messages to one player stay ordered.
type KafkaNotifier struct {
	Writer MessageWriter
	Clock  clockwork.Clock
}

func NewKafkaNotifier(brokers []string, topic string, clock clockwork.Clock) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{Writer: w, Clock: clock}
}

func (n *KafkaNotifier) Close() error {
	return n.Writer.Close()
}

func (n *KafkaNotifier) SendText(ctx context.Context, to, text string) error {
	return n.publish(ctx, OutboundEnvelope{Type: "text", To: to, Text: text})
}

func (n *KafkaNotifier) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	return n.publish(ctx, OutboundEnvelope{Type: "buttons", To: to, Text: body, Buttons: buttons})
}

func (n *KafkaNotifier) SendList(ctx context.Context, to string, list ListMessage) error {
	return n.publish(ctx, OutboundEnvelope{Type: "list", To: to, Text: list.Body, List: &list})
}

func (n *KafkaNotifier) publish(ctx context.Context, env OutboundEnvelope) error {
	env.SentAt = n.Clock.Now().UTC()
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := n.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(env.To), Value: value}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
