package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaturityKeyLayout is the calendar-day form used to key maturity dates.
const MaturityKeyLayout = "2006-01-02"

// OptionSide distinguishes calls from puts.
type OptionSide string

const (
	Call OptionSide = "Call"
	Put  OptionSide = "Put"
)

// OptionQuote is one per-strike market-data update from the options
// ticker stream. Optional market fields are nil when the exchange
// omitted them.
type OptionQuote struct {
	ID              string     `json:"id" bson:"_id"`
	TradingPair     string     `json:"tradingPair" bson:"tradingPair"`
	Side            OptionSide `json:"type" bson:"type"`
	MaturityDate    string     `json:"maturityDate" bson:"maturityDate"`
	StrikePrice     float64    `json:"strikePrice" bson:"strikePrice"`
	EventTime       int64      `json:"eventTime" bson:"eventTime"`
	TransactionTime int64      `json:"transactionTime" bson:"transactionTime"`

	OpeningPrice          *float64 `json:"openingPrice,omitempty" bson:"openingPrice,omitempty"`
	HighestPrice          *float64 `json:"highestPrice,omitempty" bson:"highestPrice,omitempty"`
	LowestPrice           *float64 `json:"lowestPrice,omitempty" bson:"lowestPrice,omitempty"`
	LatestPrice           *float64 `json:"latestPrice,omitempty" bson:"latestPrice,omitempty"`
	TradingVolume         *float64 `json:"tradingVolume,omitempty" bson:"tradingVolume,omitempty"`
	TradeAmount           *float64 `json:"tradeAmount,omitempty" bson:"tradeAmount,omitempty"`
	PriceChangePercent    *float64 `json:"priceChangePercent,omitempty" bson:"priceChangePercent,omitempty"`
	PriceChange           *float64 `json:"priceChange,omitempty" bson:"priceChange,omitempty"`
	VolumeOfLastTrade     *float64 `json:"volumeOfLastTrade,omitempty" bson:"volumeOfLastTrade,omitempty"`
	FirstTradeID          string   `json:"firstTradeID,omitempty" bson:"firstTradeID,omitempty"`
	LastTradeID           string   `json:"lastTradeID,omitempty" bson:"lastTradeID,omitempty"`
	NumberOfTrades        *int64   `json:"numberOfTrades,omitempty" bson:"numberOfTrades,omitempty"`
	BestBidPrice          *float64 `json:"bestBidPrice,omitempty" bson:"bestBidPrice,omitempty"`
	BestAskPrice          *float64 `json:"bestAskPrice,omitempty" bson:"bestAskPrice,omitempty"`
	BestBidQuantity       *float64 `json:"bestBidQuantity,omitempty" bson:"bestBidQuantity,omitempty"`
	BestAskQuantity       *float64 `json:"bestAskQuantity,omitempty" bson:"bestAskQuantity,omitempty"`
	BidImpliedVolatility  *float64 `json:"bidImpliedVolatility,omitempty" bson:"bidImpliedVolatility,omitempty"`
	AskImpliedVolatility  *float64 `json:"askImpliedVolatility,omitempty" bson:"askImpliedVolatility,omitempty"`
	Delta                 *float64 `json:"delta,omitempty" bson:"delta,omitempty"`
	Theta                 *float64 `json:"theta,omitempty" bson:"theta,omitempty"`
	Gamma                 *float64 `json:"gamma,omitempty" bson:"gamma,omitempty"`
	Vega                  *float64 `json:"vega,omitempty" bson:"vega,omitempty"`
	ImpliedVolatility     *float64 `json:"impliedVolatility,omitempty" bson:"impliedVolatility,omitempty"`
	MarkPrice             *float64 `json:"markPrice,omitempty" bson:"markPrice,omitempty"`
	BidMaxPrice           *float64 `json:"bidMaxPrice,omitempty" bson:"bidMaxPrice,omitempty"`
	AskMinPrice           *float64 `json:"askMinPrice,omitempty" bson:"askMinPrice,omitempty"`
	EstimatedStrikePrice  *float64 `json:"estimatedStrikePrice,omitempty" bson:"estimatedStrikePrice,omitempty"`
}

// IndexPrice is the underlying index value at a point in time.
type IndexPrice struct {
	ID          string  `json:"id" bson:"_id"`
	TradingPair string  `json:"tradingPair" bson:"tradingPair"`
	Time        int64   `json:"time" bson:"time"`
	Price       float64 `json:"price" bson:"price"`
}

// OptionBatch groups the quotes of one maturity date for one asset,
// as delivered together by the ticker stream.
type OptionBatch struct {
	Asset        string
	MaturityDate string
	Items        []OptionQuote
}

// ParseOptionSymbol splits a dash-delimited contract symbol of the form
// ASSET-YYMMDD-STRIKE-C|P into its parts. The maturity date is returned
// in yyyy-MM-dd form.
func ParseOptionSymbol(symbol string) (asset, maturityDate string, strike float64, side OptionSide, err error) {
	parts := strings.Split(symbol, "-")
	if len(parts) != 4 {
		return "", "", 0, "", fmt.Errorf("malformed option symbol %q", symbol)
	}
	asset = parts[0]

	raw := parts[1]
	if len(raw) != 6 {
		return "", "", 0, "", fmt.Errorf("malformed maturity date in symbol %q", symbol)
	}
	date, err := time.Parse("060102", raw)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("malformed maturity date in symbol %q: %w", symbol, err)
	}
	maturityDate = date.Format(MaturityKeyLayout)

	strike, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("malformed strike in symbol %q: %w", symbol, err)
	}

	switch parts[3] {
	case "C":
		side = Call
	case "P":
		side = Put
	default:
		return "", "", 0, "", fmt.Errorf("unknown option side %q in symbol %q", parts[3], symbol)
	}
	return asset, maturityDate, strike, side, nil
}
