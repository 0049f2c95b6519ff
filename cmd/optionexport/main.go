// Command optionexport scans the options table and writes every record
// to a Parquet file, optionally uploading the file to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"optionflow/config"
	"optionflow/logger"
)

const scanPageSize = 1000

// exportRecord maps the abbreviated table attributes to long-form
// Parquet columns.
type exportRecord struct {
	ID                   string   `dynamodbav:"id" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradingPair          string   `dynamodbav:"tr" parquet:"name=trading_pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side                 string   `dynamodbav:"tp" parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	MaturityDate         string   `dynamodbav:"m" parquet:"name=maturity_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	StrikePrice          float64  `dynamodbav:"s" parquet:"name=strike_price, type=DOUBLE"`
	EventTime            int64    `dynamodbav:"E" parquet:"name=event_time, type=INT64"`
	TransactionTime      int64    `dynamodbav:"T" parquet:"name=transaction_time, type=INT64"`
	OpeningPrice         *float64 `dynamodbav:"o" parquet:"name=opening_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	HighestPrice         *float64 `dynamodbav:"h" parquet:"name=highest_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	LowestPrice          *float64 `dynamodbav:"l" parquet:"name=lowest_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	LatestPrice          *float64 `dynamodbav:"c" parquet:"name=latest_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	TradingVolume        *float64 `dynamodbav:"V" parquet:"name=trading_volume, type=DOUBLE, repetitiontype=OPTIONAL"`
	TradeAmount          *float64 `dynamodbav:"A" parquet:"name=trade_amount, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChangePercent   *float64 `dynamodbav:"P" parquet:"name=price_change_percent, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChange          *float64 `dynamodbav:"p" parquet:"name=price_change, type=DOUBLE, repetitiontype=OPTIONAL"`
	VolumeOfLastTrade    *float64 `dynamodbav:"Q" parquet:"name=volume_of_last_trade, type=DOUBLE, repetitiontype=OPTIONAL"`
	FirstTradeID         string   `dynamodbav:"F" parquet:"name=first_trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastTradeID          string   `dynamodbav:"L" parquet:"name=last_trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	NumberOfTrades       *int64   `dynamodbav:"n" parquet:"name=number_of_trades, type=INT64, repetitiontype=OPTIONAL"`
	BestBidPrice         *float64 `dynamodbav:"bo" parquet:"name=best_bid_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAskPrice         *float64 `dynamodbav:"ao" parquet:"name=best_ask_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestBidQuantity      *float64 `dynamodbav:"bq" parquet:"name=best_bid_quantity, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAskQuantity      *float64 `dynamodbav:"aq" parquet:"name=best_ask_quantity, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidImpliedVolatility *float64 `dynamodbav:"b" parquet:"name=bid_implied_volatility, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskImpliedVolatility *float64 `dynamodbav:"a" parquet:"name=ask_implied_volatility, type=DOUBLE, repetitiontype=OPTIONAL"`
	Delta                *float64 `dynamodbav:"d" parquet:"name=delta, type=DOUBLE, repetitiontype=OPTIONAL"`
	Theta                *float64 `dynamodbav:"t" parquet:"name=theta, type=DOUBLE, repetitiontype=OPTIONAL"`
	Gamma                *float64 `dynamodbav:"g" parquet:"name=gamma, type=DOUBLE, repetitiontype=OPTIONAL"`
	Vega                 *float64 `dynamodbav:"v" parquet:"name=vega, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImpliedVolatility    *float64 `dynamodbav:"vo" parquet:"name=implied_volatility, type=DOUBLE, repetitiontype=OPTIONAL"`
	MarkPrice            *float64 `dynamodbav:"mp" parquet:"name=mark_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidMaxPrice          *float64 `dynamodbav:"hl" parquet:"name=bid_max_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskMinPrice          *float64 `dynamodbav:"ll" parquet:"name=ask_min_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	EstimatedStrikePrice *float64 `dynamodbav:"eep" parquet:"name=estimated_strike_price, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	table := flag.String("table", "", "Table to export (defaults to the configured options table)")
	out := flag.String("out", "options.parquet", "Output Parquet file path")
	bucket := flag.String("s3-bucket", "", "Upload the file to this S3 bucket")
	key := flag.String("s3-key", "", "S3 object key (defaults to the output file name)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	if *table == "" {
		*table = cfg.Storage.Dynamo.OptionsTable
	}

	ctx := context.Background()
	if err := run(ctx, cfg, *table, *out, *bucket, *key, log); err != nil {
		log.WithError(err).Error("export failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, table, out, bucket, key string, log *logger.Log) error {
	awsCfg, err := loadAWSConfig(ctx, cfg.Storage.Dynamo)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	exported, err := exportTable(ctx, client, table, out, log)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"table": table,
		"items": exported,
		"file":  out,
	}).Info("export complete")

	if bucket == "" {
		return nil
	}
	if key == "" {
		key = out
	}
	if err := upload(ctx, s3.NewFromConfig(awsCfg), bucket, key, out); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	log.WithFields(logger.Fields{"bucket": bucket, "key": key}).Info("uploaded export")
	return nil
}

func loadAWSConfig(ctx context.Context, cfg config.DynamoConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// exportTable scans the whole table page by page and streams each page
// into the Parquet writer.
func exportTable(ctx context.Context, client *dynamodb.Client, table, out string, log *logger.Log) (int, error) {
	fw, err := local.NewLocalFileWriter(out)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(exportRecord), 4)
	if err != nil {
		return 0, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName: &table,
		Limit:     aws.Int32(scanPageSize),
	})

	exported := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return exported, fmt.Errorf("scan %s: %w", table, err)
		}

		var records []exportRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return exported, fmt.Errorf("unmarshal scan page: %w", err)
		}
		for i := range records {
			if err := pw.Write(records[i]); err != nil {
				return exported, fmt.Errorf("write record: %w", err)
			}
			exported++
		}
		if exported > 0 && exported%50000 < scanPageSize {
			log.WithFields(logger.Fields{"items": exported}).Info("export progress")
		}
	}

	if err := pw.WriteStop(); err != nil {
		return exported, fmt.Errorf("finalize parquet file: %w", err)
	}
	return exported, nil
}

func upload(ctx context.Context, client *s3.Client, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   f,
	})
	return err
}
