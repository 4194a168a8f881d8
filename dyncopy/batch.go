// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import "github.com/aws/aws-sdk-go/service/dynamodb"

// maxBatchSize is the largest number of put or delete requests the
// BatchWriteItem API accepts in a single call.  Exceeding it fails the
// call outright rather than throttling it.
const maxBatchSize = 25

// batchItems splits items into ordered, contiguous chunks of at most
// size items each.  The final chunk may be short.
func batchItems(items []map[string]*dynamodb.AttributeValue, size int) [][]map[string]*dynamodb.AttributeValue {
	var batches [][]map[string]*dynamodb.AttributeValue
	for len(items) > size {
		batches = append(batches, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		batches = append(batches, items)
	}
	return batches
}
