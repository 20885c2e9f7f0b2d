package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/fract/broker"
)

type closeRequest struct {
	LongUnits  string `json:"longUnits,omitempty"`
	ShortUnits string `json:"shortUnits,omitempty"`
}

type fillTransaction struct {
	ID    string `json:"id"`
	Units string `json:"units"`
	Price string `json:"price"`
}

type cancelTransaction struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type orderResponse struct {
	OrderFillTransaction      *fillTransaction   `json:"orderFillTransaction"`
	OrderCancelTransaction    *cancelTransaction `json:"orderCancelTransaction"`
	LongOrderFillTransaction  *fillTransaction   `json:"longOrderFillTransaction"`
	ShortOrderFillTransaction *fillTransaction   `json:"shortOrderFillTransaction"`
	RelatedTransactionIDs     []string           `json:"relatedTransactionIDs"`
	LastTransactionID         string             `json:"lastTransactionID"`
}

func (r orderResponse) toBroker(raw []byte) broker.OrderResponse {
	out := broker.OrderResponse{
		TransactionIDs:    r.RelatedTransactionIDs,
		LastTransactionID: r.LastTransactionID,
		Raw:               raw,
	}
	for _, f := range []*fillTransaction{r.OrderFillTransaction, r.LongOrderFillTransaction, r.ShortOrderFillTransaction} {
		if f == nil {
			continue
		}
		out.Units += parseFloat(f.Units)
		out.Price = parseFloat(f.Price)
	}
	return out
}

// ClosePosition closes all units held on side for instrument.
func (c *Client) ClosePosition(ctx context.Context, accountID, instrument string, side broker.Side) (broker.OrderResponse, error) {
	const op = "close position"
	body := closeRequest{LongUnits: "ALL"}
	if side == broker.Short {
		body = closeRequest{ShortUnits: "ALL"}
	}

	var or orderResponse
	path := fmt.Sprintf("/v3/accounts/%s/positions/%s/close", url.PathEscape(accountID), url.PathEscape(instrument))
	raw, err := c.do(ctx, op, http.MethodPut, path, nil, body, &or)
	if err != nil {
		return broker.OrderResponse{Raw: raw}, err
	}
	return or.toBroker(raw), nil
}

type priceDetails struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
}

type trailingDetails struct {
	Distance    string `json:"distance"`
	TimeInForce string `json:"timeInForce"`
}

type clientExtensions struct {
	ID string `json:"id,omitempty"`
}

type marketOrder struct {
	Type                   string            `json:"type"`
	Instrument             string            `json:"instrument"`
	Units                  string            `json:"units"`
	TimeInForce            string            `json:"timeInForce"`
	PositionFill           string            `json:"positionFill"`
	TakeProfitOnFill       *priceDetails     `json:"takeProfitOnFill,omitempty"`
	StopLossOnFill         *priceDetails     `json:"stopLossOnFill,omitempty"`
	TrailingStopLossOnFill *trailingDetails  `json:"trailingStopLossOnFill,omitempty"`
	ClientExtensions       *clientExtensions `json:"clientExtensions,omitempty"`
}

type createOrderRequest struct {
	Order marketOrder `json:"order"`
}

// marketOrderBody renders req in the v20 wire format. Prices are rounded to
// the instrument display precision.
func marketOrderBody(req broker.OrderRequest) createOrderRequest {
	prec := int32(req.DisplayPrecision)
	if prec <= 0 {
		prec = 5
	}
	px := func(f float64) string {
		return decimal.NewFromFloat(f).Round(prec).String()
	}

	o := marketOrder{
		Type:         "MARKET",
		Instrument:   req.Instrument,
		Units:        decimal.NewFromFloat(req.Units).Truncate(0).String(),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
	}
	if req.TakeProfit > 0 {
		o.TakeProfitOnFill = &priceDetails{Price: px(req.TakeProfit), TimeInForce: "GTC"}
	}
	if req.StopLoss > 0 {
		o.StopLossOnFill = &priceDetails{Price: px(req.StopLoss), TimeInForce: "GTC"}
	}
	if req.TrailingStop > 0 {
		o.TrailingStopLossOnFill = &trailingDetails{Distance: px(req.TrailingStop), TimeInForce: "GTC"}
	}
	if req.ClientID != "" {
		o.ClientExtensions = &clientExtensions{ID: req.ClientID}
	}
	return createOrderRequest{Order: o}
}

// CreateOrder places a market order. A fill-or-kill order that the broker
// cancels is reported as an InvalidRequest failure.
func (c *Client) CreateOrder(ctx context.Context, accountID string, req broker.OrderRequest) (broker.OrderResponse, error) {
	const op = "create order"
	if req.Instrument == "" || req.Units == 0 {
		return broker.OrderResponse{}, &broker.Error{Kind: broker.InvalidRequest, Op: op, Msg: "instrument and non-zero units are required"}
	}

	var or orderResponse
	path := fmt.Sprintf("/v3/accounts/%s/orders", url.PathEscape(accountID))
	raw, err := c.do(ctx, op, http.MethodPost, path, nil, marketOrderBody(req), &or)
	if err != nil {
		return broker.OrderResponse{Raw: raw}, err
	}
	if or.OrderCancelTransaction != nil && or.OrderFillTransaction == nil {
		return or.toBroker(raw), &broker.Error{
			Kind: broker.InvalidRequest,
			Op:   op,
			Msg:  "order cancelled: " + or.OrderCancelTransaction.Reason,
		}
	}
	return or.toBroker(raw), nil
}
