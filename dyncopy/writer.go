// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// defaultInitialDelay is the first backoff delay applied when the service
// reports unprocessed items; it doubles after every retry.
const defaultInitialDelay = 3 * time.Second

// WriteOp selects the kind of request a BatchWriter submits.
type WriteOp int

const (
	// WriteOpPut writes whole items to the table.
	WriteOpPut WriteOp = iota

	// WriteOpDelete removes items identified by their key attributes.
	WriteOpDelete
)

func (op WriteOp) String() string {
	if op == WriteOpDelete {
		return "delete"
	}
	return "put"
}

// DynBatchWriter defines the portion of the DynamoDB service the
// BatchWriter requires.
type DynBatchWriter interface {
	BatchWriteItem(input *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
}

// BatchWriter submits batches of put or delete requests against a single
// table.  When the service declines part of a batch the unprocessed
// subset is resubmitted after an exponentially increasing delay, so a
// successful Write means every request in the batch has been accepted.
// Safe for use from concurrent goroutines.
type BatchWriter struct {
	Dyn   DynBatchWriter
	Table *Table
	Op    WriteOp

	// InitialDelay is the first backoff delay; it doubles after each
	// retry.  Defaults to 3 seconds.
	InitialDelay time.Duration

	// MaxRetries bounds the number of backoff rounds per batch.
	// Zero retries forever, trusting the service's throttling to
	// eventually admit the backlog.
	MaxRetries int

	itemsWritten int64
	sleep        func(time.Duration) // overridden in tests
}

// Write submits the batch and blocks until the service has accepted every
// request in it, or a hard error occurs.  Batches must not exceed the
// BatchWriteItem limit of 25 requests.
func (w *BatchWriter) Write(items []map[string]*dynamodb.AttributeValue) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxBatchSize {
		return fmt.Errorf("batch of %d items exceeds the BatchWriteItem limit of %d", len(items), maxBatchSize)
	}

	reqs := make([]*dynamodb.WriteRequest, 0, len(items))
	for _, item := range items {
		switch w.Op {
		case WriteOpPut:
			reqs = append(reqs, &dynamodb.WriteRequest{
				PutRequest: &dynamodb.PutRequest{Item: item},
			})
		case WriteOpDelete:
			reqs = append(reqs, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: w.Table.itemKey(item)},
			})
		default:
			return fmt.Errorf("unknown write op %d", w.Op)
		}
	}

	delay := w.InitialDelay
	if delay <= 0 {
		delay = defaultInitialDelay
	}

	pending := map[string][]*dynamodb.WriteRequest{w.Table.Name: reqs}
	for attempt := 0; ; attempt++ {
		submitted := countRequests(pending)
		resp, err := w.Dyn.BatchWriteItem(&dynamodb.BatchWriteItemInput{
			RequestItems:                pending,
			ReturnConsumedCapacity:      aws.String(dynamodb.ReturnConsumedCapacityNone),
			ReturnItemCollectionMetrics: aws.String(dynamodb.ReturnItemCollectionMetricsNone),
		})
		if err != nil {
			// Unprocessed items are the only retryable condition; an
			// error from the call itself indicates a malformed request
			// or a hard service failure.
			return fmt.Errorf("%s to %s failed: %v", w.Op, w.Table.Name, err)
		}

		remaining := countRequests(resp.UnprocessedItems)
		atomic.AddInt64(&w.itemsWritten, int64(submitted-remaining))
		if remaining == 0 {
			return nil
		}
		if w.MaxRetries > 0 && attempt >= w.MaxRetries {
			return fmt.Errorf("%d items still unprocessed by %s after %d retries", remaining, w.Table.Name, w.MaxRetries)
		}

		w.pause(delay)
		delay *= 2
		pending = resp.UnprocessedItems
	}
}

// ItemsWritten returns the number of requests the service has accepted so
// far.  Safe to call from concurrent goroutines.
func (w *BatchWriter) ItemsWritten() int64 {
	return atomic.LoadInt64(&w.itemsWritten)
}

func (w *BatchWriter) pause(d time.Duration) {
	if w.sleep != nil {
		w.sleep(d)
		return
	}
	time.Sleep(d)
}

func countRequests(m map[string][]*dynamodb.WriteRequest) int {
	var n int
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}
