package evolution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/neatrank/internal/market"
	"github.com/ajitpratap0/neatrank/internal/neat"
)

// MessageType distinguishes requests from replies
type MessageType string

const (
	MessageTypeRequest MessageType = "request"
	MessageTypeReply   MessageType = "reply"
)

// Message is the envelope exchanged with the evolution service
type Message struct {
	ID        uuid.UUID       `json:"id"`
	RequestID uuid.UUID       `json:"request_id,omitempty"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRequest wraps payload in a request envelope
func NewRequest(payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.New(),
		Type:      MessageTypeRequest,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// NewReply answers req with payload, or with an error message when err is
// not nil
func NewReply(req *Message, payload interface{}, err error) (*Message, error) {
	reply := &Message{
		ID:        uuid.New(),
		RequestID: req.ID,
		Type:      MessageTypeReply,
		Timestamp: time.Now(),
	}
	if err != nil {
		reply.Error = err.Error()
		return reply, nil
	}

	data, merr := json.Marshal(payload)
	if merr != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", merr)
	}
	reply.Payload = data
	return reply, nil
}

// UnmarshalPayload decodes the payload into v
func (m *Message) UnmarshalPayload(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// EvaluateRequest asks for one simulation
type EvaluateRequest struct {
	Network   neat.Network   `json:"network"`
	Applicant neat.Applicant `json:"applicant"`
	Candles   CandleSeries   `json:"candles"`
}

// EvaluateReply carries the simulation outcome
type EvaluateReply struct {
	Outcome neat.TrialOutcome `json:"outcome"`
}

// EvolveRequest asks for a search run
type EvolveRequest struct {
	Applicant neat.Applicant `json:"applicant"`
	Options   EvolveOptions  `json:"options"`
}

// EvolveReply names the network the search stored, if any
type EvolveReply struct {
	NetworkID string `json:"network_id,omitempty"`
}

// CandleSeries encodes candles as [unix, open, high, low, close, volume]
// rows to keep request payloads small
type CandleSeries []market.Candle

// MarshalJSON implements json.Marshaler
func (s CandleSeries) MarshalJSON() ([]byte, error) {
	rows := make([][6]float64, len(s))
	for i, c := range s {
		rows[i] = [6]float64{float64(c.Timestamp.Unix()), c.Open, c.High, c.Low, c.Close, c.Volume}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *CandleSeries) UnmarshalJSON(data []byte) error {
	var rows [][6]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	out := make(CandleSeries, len(rows))
	for i, r := range rows {
		out[i] = market.Candle{
			Timestamp: time.Unix(int64(r[0]), 0).UTC(),
			Open:      r[1],
			High:      r[2],
			Low:       r[3],
			Close:     r[4],
			Volume:    r[5],
		}
	}
	*s = out
	return nil
}
