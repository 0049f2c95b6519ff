package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"optionflow/models"
)

// wireOptionTicker mirrors one element of the 24h options ticker stream
// payload. Numeric market fields arrive as strings and may be absent.
type wireOptionTicker struct {
	EventTime            int64  `json:"E"`
	TransactionTime      int64  `json:"T"`
	Symbol               string `json:"s"`
	OpeningPrice         string `json:"o"`
	HighestPrice         string `json:"h"`
	LowestPrice          string `json:"l"`
	LatestPrice          string `json:"c"`
	TradingVolume        string `json:"V"`
	TradeAmount          string `json:"A"`
	PriceChangePercent   string `json:"P"`
	PriceChange          string `json:"p"`
	VolumeOfLastTrade    string `json:"Q"`
	FirstTradeID         string `json:"F"`
	LastTradeID          string `json:"L"`
	NumberOfTrades       *int64 `json:"n"`
	BestBidPrice         string `json:"bo"`
	BestAskPrice         string `json:"ao"`
	BestBidQuantity      string `json:"bq"`
	BestAskQuantity      string `json:"aq"`
	BidImpliedVolatility string `json:"b"`
	AskImpliedVolatility string `json:"a"`
	Delta                string `json:"d"`
	Theta                string `json:"t"`
	Gamma                string `json:"g"`
	Vega                 string `json:"v"`
	ImpliedVolatility    string `json:"vo"`
	MarkPrice            string `json:"mp"`
	BidMaxPrice          string `json:"hl"`
	AskMinPrice          string `json:"ll"`
	EstimatedStrikePrice string `json:"eep"`
}

// wireIndexTick mirrors the index price stream payload.
type wireIndexTick struct {
	EventTime int64  `json:"E"`
	Price     string `json:"p"`
}

// DecodeMessage converts one raw stream message into an Event. A JSON
// array is a ticker batch for a single maturity date; a JSON object is
// an index price tick. An empty batch decodes to a zero Event.
func DecodeMessage(asset, quote string, data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Event{}, fmt.Errorf("empty message")
	}

	if trimmed[0] == '[' {
		var wire []wireOptionTicker
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return Event{}, fmt.Errorf("decode ticker batch: %w", err)
		}
		if len(wire) == 0 {
			return Event{}, nil
		}
		return decodeBatch(quote, wire)
	}

	var wire wireIndexTick
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Event{}, fmt.Errorf("decode index tick: %w", err)
	}
	price, err := strconv.ParseFloat(wire.Price, 64)
	if err != nil {
		return Event{}, fmt.Errorf("decode index price %q: %w", wire.Price, err)
	}
	return Event{Index: &models.IndexPrice{
		TradingPair: asset + "-" + quote,
		Time:        wire.EventTime,
		Price:       price,
	}}, nil
}

func decodeBatch(quote string, wire []wireOptionTicker) (Event, error) {
	items := make([]models.OptionQuote, 0, len(wire))
	var batchAsset, batchMaturity string
	for _, w := range wire {
		asset, maturity, strike, side, err := models.ParseOptionSymbol(w.Symbol)
		if err != nil {
			return Event{}, err
		}
		if batchAsset == "" {
			batchAsset = asset
			batchMaturity = maturity
		}
		items = append(items, models.OptionQuote{
			TradingPair:          asset + "-" + quote,
			Side:                 side,
			MaturityDate:         maturity,
			StrikePrice:          strike,
			EventTime:            w.EventTime,
			TransactionTime:      w.TransactionTime,
			OpeningPrice:         optionalFloat(w.OpeningPrice),
			HighestPrice:         optionalFloat(w.HighestPrice),
			LowestPrice:          optionalFloat(w.LowestPrice),
			LatestPrice:          optionalFloat(w.LatestPrice),
			TradingVolume:        optionalFloat(w.TradingVolume),
			TradeAmount:          optionalFloat(w.TradeAmount),
			PriceChangePercent:   optionalFloat(w.PriceChangePercent),
			PriceChange:          optionalFloat(w.PriceChange),
			VolumeOfLastTrade:    optionalFloat(w.VolumeOfLastTrade),
			FirstTradeID:         w.FirstTradeID,
			LastTradeID:          w.LastTradeID,
			NumberOfTrades:       w.NumberOfTrades,
			BestBidPrice:         optionalFloat(w.BestBidPrice),
			BestAskPrice:         optionalFloat(w.BestAskPrice),
			BestBidQuantity:      optionalFloat(w.BestBidQuantity),
			BestAskQuantity:      optionalFloat(w.BestAskQuantity),
			BidImpliedVolatility: optionalFloat(w.BidImpliedVolatility),
			AskImpliedVolatility: optionalFloat(w.AskImpliedVolatility),
			Delta:                optionalFloat(w.Delta),
			Theta:                optionalFloat(w.Theta),
			Gamma:                optionalFloat(w.Gamma),
			Vega:                 optionalFloat(w.Vega),
			ImpliedVolatility:    optionalFloat(w.ImpliedVolatility),
			MarkPrice:            optionalFloat(w.MarkPrice),
			BidMaxPrice:          optionalFloat(w.BidMaxPrice),
			AskMinPrice:          optionalFloat(w.AskMinPrice),
			EstimatedStrikePrice: optionalFloat(w.EstimatedStrikePrice),
		})
	}
	return Event{Batch: &models.OptionBatch{
		Asset:        batchAsset,
		MaturityDate: batchMaturity,
		Items:        items,
	}}, nil
}

func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
