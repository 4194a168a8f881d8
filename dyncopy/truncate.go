// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// DynTruncator groups the scan and batch-write calls a Truncator needs.
type DynTruncator interface {
	DynScanner
	DynBatchWriter
}

// Truncator deletes every item from a table.  It scans only the key
// attributes of each item and feeds the resulting keys through batched
// deletes, page by page, until the scan reports nothing left.
//
// Truncation is not atomic; a concurrent reader observes a partially
// emptied table.
type Truncator struct {
	Dyn          DynTruncator
	Table        *Table
	InitialDelay time.Duration
	MaxRetries   int

	deleted int64
	sleep   func(time.Duration) // forwarded to the batch writer in tests
}

// Run removes all items and returns the number deleted.
func (tr *Truncator) Run() (int64, error) {
	writer := &BatchWriter{
		Dyn:          tr.Dyn,
		Table:        tr.Table,
		Op:           WriteOpDelete,
		InitialDelay: tr.InitialDelay,
		MaxRetries:   tr.MaxRetries,
		sleep:        tr.sleep,
	}

	// Only fetch the key attributes; deleting needs nothing else.
	keys := tr.Table.keyAttrs()
	names := make(map[string]*string, len(keys))
	exprs := make([]string, 0, len(keys))
	for _, attr := range keys {
		names["#"+attr] = aws.String(attr)
		exprs = append(exprs, "#"+attr)
	}

	params := &dynamodb.ScanInput{
		TableName:                aws.String(tr.Table.Name),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String(strings.Join(exprs, ", ")),
		ExpressionAttributeNames: names,
	}

	for {
		resp, err := tr.Dyn.Scan(params)
		if err != nil {
			return tr.Deleted(), fmt.Errorf("scan of %s failed: %v", tr.Table.Name, err)
		}
		if aws.Int64Value(resp.Count) == 0 {
			break
		}
		for _, batch := range batchItems(resp.Items, maxBatchSize) {
			if err := writer.Write(batch); err != nil {
				return tr.Deleted(), err
			}
			atomic.AddInt64(&tr.deleted, int64(len(batch)))
		}
		if resp.LastEvaluatedKey == nil {
			break
		}
		params.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	return tr.Deleted(), nil
}

// Deleted returns the number of items removed so far.  Safe to call from
// concurrent goroutines.
func (tr *Truncator) Deleted() int64 {
	return atomic.LoadInt64(&tr.deleted)
}
