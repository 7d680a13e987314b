package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// NamespaceChangedMessage announces that the authority accepted writes for a
// namespace. It carries no records: receivers run a normal sync.
type NamespaceChangedMessage struct {
	Namespace string    `json:"namespace"`
	Cursor    string    `json:"cursor"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNamespaceChangedMessage creates a message stamped with the current time
func NewNamespaceChangedMessage(namespace, cursor string) *NamespaceChangedMessage {
	return &NamespaceChangedMessage{
		Namespace: namespace,
		Cursor:    cursor,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NamespaceChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NamespaceChangedMessageFromJSON decodes and checks a message body.
func NamespaceChangedMessageFromJSON(data []byte) (*NamespaceChangedMessage, error) {
	var msg NamespaceChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Namespace == "" {
		return nil, errors.New("message has no namespace")
	}
	return &msg, nil
}

// RoutingKey is the topic a namespace's notifications are published under.
func RoutingKey(namespace string) string {
	return "ledger.namespace." + namespace
}
