// Package dynamo stores option snapshots in DynamoDB. Option quotes use
// abbreviated attribute names to keep item sizes small.
package dynamo

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// optionRecord is the DynamoDB shape of one option quote.
type optionRecord struct {
	ID                   string   `dynamodbav:"id"`
	TradingPair          string   `dynamodbav:"tr"`
	Side                 string   `dynamodbav:"tp"`
	MaturityDate         string   `dynamodbav:"m"`
	StrikePrice          float64  `dynamodbav:"s"`
	EventTime            int64    `dynamodbav:"E"`
	TransactionTime      int64    `dynamodbav:"T"`
	OpeningPrice         *float64 `dynamodbav:"o,omitempty"`
	HighestPrice         *float64 `dynamodbav:"h,omitempty"`
	LowestPrice          *float64 `dynamodbav:"l,omitempty"`
	LatestPrice          *float64 `dynamodbav:"c,omitempty"`
	TradingVolume        *float64 `dynamodbav:"V,omitempty"`
	TradeAmount          *float64 `dynamodbav:"A,omitempty"`
	PriceChangePercent   *float64 `dynamodbav:"P,omitempty"`
	PriceChange          *float64 `dynamodbav:"p,omitempty"`
	VolumeOfLastTrade    *float64 `dynamodbav:"Q,omitempty"`
	FirstTradeID         string   `dynamodbav:"F,omitempty"`
	LastTradeID          string   `dynamodbav:"L,omitempty"`
	NumberOfTrades       *int64   `dynamodbav:"n,omitempty"`
	BestBidPrice         *float64 `dynamodbav:"bo,omitempty"`
	BestAskPrice         *float64 `dynamodbav:"ao,omitempty"`
	BestBidQuantity      *float64 `dynamodbav:"bq,omitempty"`
	BestAskQuantity      *float64 `dynamodbav:"aq,omitempty"`
	BidImpliedVolatility *float64 `dynamodbav:"b,omitempty"`
	AskImpliedVolatility *float64 `dynamodbav:"a,omitempty"`
	Delta                *float64 `dynamodbav:"d,omitempty"`
	Theta                *float64 `dynamodbav:"t,omitempty"`
	Gamma                *float64 `dynamodbav:"g,omitempty"`
	Vega                 *float64 `dynamodbav:"v,omitempty"`
	ImpliedVolatility    *float64 `dynamodbav:"vo,omitempty"`
	MarkPrice            *float64 `dynamodbav:"mp,omitempty"`
	BidMaxPrice          *float64 `dynamodbav:"hl,omitempty"`
	AskMinPrice          *float64 `dynamodbav:"ll,omitempty"`
	EstimatedStrikePrice *float64 `dynamodbav:"eep,omitempty"`
}

type indexRecord struct {
	ID              string  `dynamodbav:"id"`
	TradingPair     string  `dynamodbav:"tradingPair"`
	TransactionTime int64   `dynamodbav:"transactionTime"`
	Price           float64 `dynamodbav:"price"`
}

// Store implements the store contract on DynamoDB.
type Store struct {
	cfg    config.DynamoConfig
	log    *logger.Log
	client *dynamodb.Client
}

func New(cfg config.DynamoConfig) *Store {
	return &Store{cfg: cfg, log: logger.GetLogger()}
}

// Connect builds the DynamoDB client. Static credentials from the
// configuration take precedence over the default chain.
func (s *Store) Connect(ctx context.Context) error {
	opts := []func(*awsconfig.LoadOptions) error{}
	if s.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}
	s.client = dynamodb.NewFromConfig(awsCfg)

	s.log.WithComponent("dynamo_store").WithFields(logger.Fields{
		"region":        awsCfg.Region,
		"options_table": s.cfg.OptionsTable,
	}).Info("dynamodb store connected")
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.client = nil
	return nil
}

func (s *Store) NewID() string {
	return uuid.NewString()
}

func (s *Store) StoreIndexPrice(ctx context.Context, item models.IndexPrice) error {
	av, err := attributevalue.MarshalMap(indexRecord{
		ID:              item.ID,
		TradingPair:     item.TradingPair,
		TransactionTime: item.Time,
		Price:           item.Price,
	})
	if err != nil {
		return fmt.Errorf("marshal index price: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.cfg.IndexPricesTable,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("store index price: %w", err)
	}
	return nil
}

func (s *Store) StoreOptionBatch(ctx context.Context, batch models.OptionBatch) error {
	records := make([]optionRecord, len(batch.Items))
	for i, item := range batch.Items {
		records[i] = toRecord(item)
	}
	if err := BatchWriteOrFail(ctx, s.client, s.cfg.OptionsTable, records); err != nil {
		return fmt.Errorf("store option batch %s/%s: %w", batch.Asset, batch.MaturityDate, err)
	}
	return nil
}

func toRecord(q models.OptionQuote) optionRecord {
	return optionRecord{
		ID:                   q.ID,
		TradingPair:          q.TradingPair,
		Side:                 string(q.Side),
		MaturityDate:         q.MaturityDate,
		StrikePrice:          q.StrikePrice,
		EventTime:            q.EventTime,
		TransactionTime:      q.TransactionTime,
		OpeningPrice:         q.OpeningPrice,
		HighestPrice:         q.HighestPrice,
		LowestPrice:          q.LowestPrice,
		LatestPrice:          q.LatestPrice,
		TradingVolume:        q.TradingVolume,
		TradeAmount:          q.TradeAmount,
		PriceChangePercent:   q.PriceChangePercent,
		PriceChange:          q.PriceChange,
		VolumeOfLastTrade:    q.VolumeOfLastTrade,
		FirstTradeID:         q.FirstTradeID,
		LastTradeID:          q.LastTradeID,
		NumberOfTrades:       q.NumberOfTrades,
		BestBidPrice:         q.BestBidPrice,
		BestAskPrice:         q.BestAskPrice,
		BestBidQuantity:      q.BestBidQuantity,
		BestAskQuantity:      q.BestAskQuantity,
		BidImpliedVolatility: q.BidImpliedVolatility,
		AskImpliedVolatility: q.AskImpliedVolatility,
		Delta:                q.Delta,
		Theta:                q.Theta,
		Gamma:                q.Gamma,
		Vega:                 q.Vega,
		ImpliedVolatility:    q.ImpliedVolatility,
		MarkPrice:            q.MarkPrice,
		BidMaxPrice:          q.BidMaxPrice,
		AskMinPrice:          q.AskMinPrice,
		EstimatedStrikePrice: q.EstimatedStrikePrice,
	}
}
