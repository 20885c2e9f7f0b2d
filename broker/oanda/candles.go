package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/market"
)

// candleData represents the OHLC data in the API response
type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool        `json:"complete"`
	Volume   int         `json:"volume"`
	Time     string      `json:"time"`
	Bid      *candleData `json:"bid,omitempty"`
	Ask      *candleData `json:"ask,omitempty"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// GetCandles fetches the last count complete bid/ask candles and returns
// their closes as rates, oldest first. OANDA returns the in-progress candle
// last, so one extra bar is requested to make up for it.
func (c *Client) GetCandles(ctx context.Context, instrument string, res market.Resolution, count int) ([]market.Rate, error) {
	const op = "get candles"
	if instrument == "" {
		return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Msg: "instrument is required"}
	}
	if res == "" || res == market.TICK {
		return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Msg: fmt.Sprintf("no candles for resolution %q", res)}
	}
	if count <= 0 || count > 5000 {
		return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Msg: "count must be in 1..5000"}
	}

	q := url.Values{}
	q.Set("price", "BA")
	q.Set("granularity", string(res))
	q.Set("count", strconv.Itoa(min(count+1, 5000)))

	var cr candlesResponse
	path := fmt.Sprintf("/v3/instruments/%s/candles", url.PathEscape(instrument))
	if _, err := c.do(ctx, op, http.MethodGet, path, q, nil, &cr); err != nil {
		return nil, err
	}

	out := make([]market.Rate, 0, len(cr.Candles))
	for _, ac := range cr.Candles {
		// Skip incomplete candles
		if !ac.Complete || ac.Bid == nil || ac.Ask == nil {
			continue
		}
		out = append(out, market.Rate{
			Instrument: instrument,
			Time:       parseTime(ac.Time),
			Bid:        parseFloat(ac.Bid.C),
			Ask:        parseFloat(ac.Ask.C),
		})
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}
