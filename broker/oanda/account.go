package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/market"
)

type positionSide struct {
	Units    string   `json:"units"`
	TradeIDs []string `json:"tradeIDs"`
}

type apiPosition struct {
	Instrument string       `json:"instrument"`
	Long       positionSide `json:"long"`
	Short      positionSide `json:"short"`
}

type accountResponse struct {
	Account struct {
		ID                string        `json:"id"`
		Currency          string        `json:"currency"`
		Balance           string        `json:"balance"`
		NAV               string        `json:"NAV"`
		MarginUsed        string        `json:"marginUsed"`
		MarginAvailable   string        `json:"marginAvailable"`
		LastTransactionID string        `json:"lastTransactionID"`
		Positions         []apiPosition `json:"positions"`
	} `json:"account"`
	LastTransactionID string `json:"lastTransactionID"`
}

// GetAccount fetches balance, margin and open positions.
func (c *Client) GetAccount(ctx context.Context, accountID string) (broker.Account, error) {
	const op = "get account"
	var ar accountResponse
	if _, err := c.do(ctx, op, http.MethodGet, "/v3/accounts/"+url.PathEscape(accountID), nil, nil, &ar); err != nil {
		return broker.Account{}, err
	}

	a := ar.Account
	acct := broker.Account{
		ID:                a.ID,
		Currency:          a.Currency,
		Balance:           parseFloat(a.Balance),
		NAV:               parseFloat(a.NAV),
		MarginUsed:        parseFloat(a.MarginUsed),
		MarginAvailable:   parseFloat(a.MarginAvailable),
		LastTransactionID: firstNonEmpty(ar.LastTransactionID, a.LastTransactionID),
	}
	for _, p := range a.Positions {
		// A net position has trades on one side only; hedged accounts are
		// reported by their long side first.
		switch {
		case len(p.Long.TradeIDs) > 0:
			acct.Positions = append(acct.Positions, broker.Position{
				Instrument: p.Instrument, Side: broker.Long, Units: parseFloat(p.Long.Units),
			})
		case len(p.Short.TradeIDs) > 0:
			acct.Positions = append(acct.Positions, broker.Position{
				Instrument: p.Instrument, Side: broker.Short, Units: parseFloat(p.Short.Units),
			})
		}
	}
	return acct, nil
}

type instrumentsResponse struct {
	Instruments []struct {
		Name                        string `json:"name"`
		PipLocation                 int    `json:"pipLocation"`
		DisplayPrecision            int    `json:"displayPrecision"`
		MarginRate                  string `json:"marginRate"`
		MinimumTrailingStopDistance string `json:"minimumTrailingStopDistance"`
		MaximumTrailingStopDistance string `json:"maximumTrailingStopDistance"`
		MaximumOrderUnits           string `json:"maximumOrderUnits"`
	} `json:"instruments"`
}

// GetInstruments lists the instruments tradable by the account.
func (c *Client) GetInstruments(ctx context.Context, accountID string) ([]market.Instrument, error) {
	const op = "get instruments"
	var ir instrumentsResponse
	path := fmt.Sprintf("/v3/accounts/%s/instruments", url.PathEscape(accountID))
	if _, err := c.do(ctx, op, http.MethodGet, path, nil, nil, &ir); err != nil {
		return nil, err
	}

	out := make([]market.Instrument, 0, len(ir.Instruments))
	for _, in := range ir.Instruments {
		base, quote, err := market.SplitInstrument(in.Name)
		if err != nil {
			// CFDs and metals without a currency pair name are not traded here.
			continue
		}
		out = append(out, market.Instrument{
			Name:             in.Name,
			BaseCurrency:     base,
			QuoteCurrency:    quote,
			PipLocation:      in.PipLocation,
			DisplayPrecision: in.DisplayPrecision,
			MarginRate:       parseFloat(in.MarginRate),
			MinTrailingStop:  parseFloat(in.MinimumTrailingStopDistance),
			MaxTrailingStop:  parseFloat(in.MaximumTrailingStopDistance),
			MaxOrderUnits:    parseFloat(in.MaximumOrderUnits),
			Tradeable:        true,
		})
	}
	return out, nil
}

type pricingResponse struct {
	Prices []struct {
		Instrument  string `json:"instrument"`
		Time        string `json:"time"`
		Tradeable   *bool  `json:"tradeable"`
		CloseoutBid string `json:"closeoutBid"`
		CloseoutAsk string `json:"closeoutAsk"`
	} `json:"prices"`
}

// GetPricing returns the current closeout bid/ask for instruments.
func (c *Client) GetPricing(ctx context.Context, accountID string, instruments []string) ([]market.Rate, error) {
	const op = "get pricing"
	if len(instruments) == 0 {
		return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Msg: "no instruments"}
	}
	q := url.Values{}
	q.Set("instruments", strings.Join(instruments, ","))

	var pr pricingResponse
	path := fmt.Sprintf("/v3/accounts/%s/pricing", url.PathEscape(accountID))
	if _, err := c.do(ctx, op, http.MethodGet, path, q, nil, &pr); err != nil {
		return nil, err
	}

	out := make([]market.Rate, 0, len(pr.Prices))
	for _, p := range pr.Prices {
		out = append(out, market.Rate{
			Instrument: p.Instrument,
			Time:       parseTime(p.Time),
			Bid:        parseFloat(p.CloseoutBid),
			Ask:        parseFloat(p.CloseoutAsk),
			Halted:     p.Tradeable != nil && !*p.Tradeable,
		})
	}
	return out, nil
}

type apiTransaction struct {
	ID         string `json:"id"`
	Time       string `json:"time"`
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Units      string `json:"units"`
	Price      string `json:"price"`
	PL         string `json:"pl"`
	Reason     string `json:"reason"`
}

type transactionsResponse struct {
	Transactions      []apiTransaction `json:"transactions"`
	LastTransactionID string           `json:"lastTransactionID"`
}

// GetTransactionsSince returns transactions newer than lastID. With an empty
// lastID only the current last transaction id is fetched, so history starts
// at process start.
func (c *Client) GetTransactionsSince(ctx context.Context, accountID, lastID string) ([]broker.Transaction, string, error) {
	const op = "get transactions"
	var tr transactionsResponse

	path := fmt.Sprintf("/v3/accounts/%s/transactions", url.PathEscape(accountID))
	var q url.Values
	if lastID != "" {
		path += "/sinceid"
		q = url.Values{}
		q.Set("id", lastID)
	}
	if _, err := c.do(ctx, op, http.MethodGet, path, q, nil, &tr); err != nil {
		return nil, lastID, err
	}

	out := make([]broker.Transaction, 0, len(tr.Transactions))
	for _, t := range tr.Transactions {
		out = append(out, toTransaction(t))
	}
	last := tr.LastTransactionID
	if last == "" {
		last = lastID
	}
	return out, last, nil
}

func toTransaction(t apiTransaction) broker.Transaction {
	return broker.Transaction{
		ID:         t.ID,
		Type:       t.Type,
		Instrument: t.Instrument,
		Units:      parseFloat(t.Units),
		Price:      parseFloat(t.Price),
		PL:         parseFloat(t.PL),
		Reason:     t.Reason,
		Time:       parseTime(t.Time),
	}
}

// parseFloat reads OANDA's decimal strings; empty or malformed values are 0.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
