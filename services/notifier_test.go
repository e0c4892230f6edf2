package services

import (
	"context"
	"sync"
)

// RecordingNotifier keeps every message in memory.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []Message
}

func (n *RecordingNotifier) record(m Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, m)
}

func (n *RecordingNotifier) SendText(_ context.Context, to, text string) error {
	n.record(Message{To: to, Text: text})
	return nil
}

func (n *RecordingNotifier) SendButtons(_ context.Context, to, body string, buttons []Button) error {
	n.record(Message{To: to, Text: body, Buttons: buttons})
	return nil
}

func (n *RecordingNotifier) SendList(_ context.Context, to string, list ListMessage) error {
	l := list
	n.record(Message{To: to, Text: list.Body, List: &l})
	return nil
}

// To returns the messages sent to one address.
func (n *RecordingNotifier) To(addr string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, m := range n.Sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}
