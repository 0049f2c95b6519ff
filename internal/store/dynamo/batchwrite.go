package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"optionflow/logger"
)

// maxBatchSize is DynamoDB's per-request item limit for BatchWriteItem.
const maxBatchSize = 25

// defaultParallelism bounds how many chunk requests are in flight at
// once.
const defaultParallelism = 5

// ErrUnprocessedItems reports that a batch write left items unapplied.
var ErrUnprocessedItems = errors.New("batch write left unprocessed items")

// BatchWriteAPI is the slice of the DynamoDB client used by the batch
// writer.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// BatchWrite stores items in table using BatchWriteItem requests of at
// most 25 items each, submitted concurrently. It returns the items that
// were not durably applied: unprocessed items reported by DynamoDB plus
// every item of any chunk whose request failed outright. The order of
// returned items across chunks is unspecified. No retries are
// attempted; handling failures is the caller's decision.
func BatchWrite[T any](ctx context.Context, client BatchWriteAPI, table string, items []T) []T {
	if len(items) == 0 {
		return nil
	}
	log := logger.GetLogger().WithComponent("dynamo_batch_write").WithFields(logger.Fields{
		"table": table,
		"items": len(items),
	})

	parts := chunks(items, maxBatchSize)

	var (
		mu     sync.Mutex
		failed []T
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, defaultParallelism)
	for _, part := range parts {
		wg.Add(1)
		go func(part []T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			unprocessed, err := writeChunk(ctx, client, table, part)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).Error("batch write request failed")
				failed = append(failed, part...)
				return
			}
			failed = append(failed, unprocessed...)
		}(part)
	}
	wg.Wait()

	if len(failed) > 0 {
		log.WithFields(logger.Fields{"failed": len(failed)}).Warn("batch write incomplete")
	}
	return failed
}

// BatchWriteOrFail is the strict form of BatchWrite: any item left
// unapplied turns into an error.
func BatchWriteOrFail[T any](ctx context.Context, client BatchWriteAPI, table string, items []T) error {
	if failed := BatchWrite(ctx, client, table, items); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d items for table %s", ErrUnprocessedItems, len(failed), len(items), table)
	}
	return nil
}

func writeChunk[T any](ctx context.Context, client BatchWriteAPI, table string, part []T) ([]T, error) {
	requests := make([]types.WriteRequest, 0, len(part))
	for _, item := range part {
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("marshal item: %w", err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{table: requests},
	})
	if err != nil {
		return nil, err
	}

	var unprocessed []T
	for _, req := range out.UnprocessedItems[table] {
		if req.PutRequest == nil {
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(req.PutRequest.Item, &item); err != nil {
			return nil, fmt.Errorf("unmarshal unprocessed item: %w", err)
		}
		unprocessed = append(unprocessed, item)
	}
	return unprocessed, nil
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
