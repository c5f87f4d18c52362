package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// SignalEnvelope is the wire format for contact signals on the input topic.
// Producers normalize upstream payloads into this shape before publishing.
type SignalEnvelope struct {
	TenantID             string               `json:"tenant_id"`
	SignalID             string               `json:"signal_id"`
	Type                 models.SignalType    `json:"type"`
	Identifiers          models.IdentifierMap `json:"identifiers"`
	Text                 *string              `json:"text,omitempty"`
	OccurredAt           time.Time            `json:"occurred_at"`
	Source               string               `json:"source"`
	Behavior             models.Vector        `json:"behavior,omitempty"`
	BehavioralSimilarity *float64             `json:"behavioral_similarity,omitempty"`
}

// ToSignal converts the envelope into the internal signal model
func (e *SignalEnvelope) ToSignal() *models.Signal {
	return &models.Signal{
		SignalID:             e.SignalID,
		TenantID:             e.TenantID,
		Type:                 e.Type,
		RawIdentifiers:       e.Identifiers,
		Text:                 e.Text,
		OccurredAt:           e.OccurredAt,
		Source:               e.Source,
		Behavior:             e.Behavior,
		BehavioralSimilarity: e.BehavioralSimilarity,
	}
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Signal *models.Signal
}

// ParseSignal parses the message value as a signal envelope
func (m *IncomingMessage) ParseSignal() error {
	var env SignalEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.TenantID == "" {
		env.TenantID = m.Headers["tenant_id"]
	}
	m.Signal = env.ToSignal()
	return nil
}

// GetTenantID returns the tenant ID from the parsed signal or headers
func (m *IncomingMessage) GetTenantID() string {
	if m.Signal != nil && m.Signal.TenantID != "" {
		return m.Signal.TenantID
	}
	return m.Headers["tenant_id"]
}
