package journal

import (
	"encoding/json"
	"time"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/pkg/id"
)

// OrderRecord is one order attempt: an open, a close or a dry run.
type OrderRecord struct {
	ID             string          `json:"id"`
	Time           time.Time       `json:"time"`
	Op             string          `json:"op"`
	Instrument     string          `json:"instrument"`
	Units          float64         `json:"units"`
	Price          float64         `json:"price,omitempty"`
	TakeProfit     float64         `json:"take_profit,omitempty"`
	StopLoss       float64         `json:"stop_loss,omitempty"`
	TrailingStop   float64         `json:"trailing_stop,omitempty"`
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	TransactionIDs []string        `json:"transaction_ids,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
	ResponseText   string          `json:"response_text,omitempty"`
}

// stampFromID fills a missing Time from the ULID in the record id.
func (r *OrderRecord) stampFromID() {
	if !r.Time.IsZero() {
		return
	}
	if t, ok := id.Time(r.ID); ok {
		r.Time = t
	}
}

// SetResponse stores a broker response body. Bodies that are not JSON, such
// as a gateway error page, go to ResponseText.
func (r *OrderRecord) SetResponse(raw []byte) {
	r.Response, r.ResponseText = nil, ""
	switch {
	case len(raw) == 0:
	case json.Valid(raw):
		r.Response = json.RawMessage(raw)
	default:
		r.ResponseText = string(raw)
	}
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusDryRun = "dry-run"
)

type TransactionRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Instrument string    `json:"instrument,omitempty"`
	Units      float64   `json:"units,omitempty"`
	Price      float64   `json:"price,omitempty"`
	PL         float64   `json:"pl"`
	Reason     string    `json:"reason,omitempty"`
}

func FromTransaction(t broker.Transaction) TransactionRecord {
	return TransactionRecord{
		ID:         t.ID,
		Time:       t.Time,
		Type:       t.Type,
		Instrument: t.Instrument,
		Units:      t.Units,
		Price:      t.Price,
		PL:         t.PL,
		Reason:     t.Reason,
	}
}

// SignalRecord is the per-instrument outcome of one cycle.
type SignalRecord struct {
	Time       time.Time `json:"time"`
	Instrument string    `json:"instrument"`
	Resolution string    `json:"resolution"`
	Estimate   float64   `json:"estimate"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Action     string    `json:"action"`
	Decision   string    `json:"decision"`
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordTransactions([]broker.Transaction) error
	RecordSignal(SignalRecord) error
	Close() error
}

// Multi fans records out to every journal and returns the first error.
type Multi []Journal

func (m Multi) RecordOrder(r OrderRecord) error {
	var first error
	for _, j := range m {
		if err := j.RecordOrder(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordTransactions(ts []broker.Transaction) error {
	var first error
	for _, j := range m {
		if err := j.RecordTransactions(ts); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordSignal(r SignalRecord) error {
	var first error
	for _, j := range m {
		if err := j.RecordSignal(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, j := range m {
		if err := j.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
