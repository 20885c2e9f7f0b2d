package broker

import (
	"context"
	"time"

	"github.com/rustyeddy/fract/market"
)

// Client is the narrow surface the trading loop needs from a brokerage.
// Implementations return *Error for every broker-side failure.
type Client interface {
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetInstruments(ctx context.Context, accountID string) ([]market.Instrument, error)
	GetPricing(ctx context.Context, accountID string, instruments []string) ([]market.Rate, error)
	// GetTransactionsSince returns transactions after lastID, oldest first,
	// plus the newest transaction id. An empty lastID lists from the start.
	GetTransactionsSince(ctx context.Context, accountID, lastID string) ([]Transaction, string, error)
	GetCandles(ctx context.Context, instrument string, res market.Resolution, count int) ([]market.Rate, error)
	ClosePosition(ctx context.Context, accountID, instrument string, side Side) (OrderResponse, error)
	CreateOrder(ctx context.Context, accountID string, order OrderRequest) (OrderResponse, error)
}

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

type Account struct {
	ID                string
	Currency          string
	Balance           float64
	NAV               float64
	MarginUsed        float64
	MarginAvailable   float64
	LastTransactionID string
	Positions         []Position
}

// Position is the net open position on one instrument. Units are signed.
type Position struct {
	Instrument string
	Side       Side
	Units      float64
}

type Transaction struct {
	ID         string
	Type       string
	Instrument string
	Units      float64
	Price      float64
	PL         float64
	Reason     string
	Time       time.Time
}

// OrderRequest is a market order with attached exit orders. Prices are in
// natural units; zero means "not set".
type OrderRequest struct {
	Instrument       string
	Units            float64
	TakeProfit       float64
	StopLoss         float64
	TrailingStop     float64
	ClientID         string
	DisplayPrecision int
}

// OrderResponse carries what the broker reported for a close or order.
type OrderResponse struct {
	TransactionIDs    []string
	LastTransactionID string
	Units             float64
	Price             float64
	Raw               []byte
}
