// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go/service/dynamodb"
)

var batchTests = []struct {
	n    int
	size int
}{
	{0, 25},
	{1, 25},
	{24, 25},
	{25, 25},
	{26, 25},
	{60, 25},
	{10, 3},
}

func TestBatchItems(t *testing.T) {
	for _, test := range batchTests {
		items := make([]map[string]*dynamodb.AttributeValue, test.n)
		for i := range items {
			items[i] = makeItem("p", fmt.Sprintf("s%03d", i), "")
		}

		batches := batchItems(items, test.size)

		expectedCount := (test.n + test.size - 1) / test.size
		if len(batches) != expectedCount {
			t.Errorf("n=%d size=%d expected %d batches, got %d", test.n, test.size, expectedCount, len(batches))
		}

		var rejoined []map[string]*dynamodb.AttributeValue
		for i, batch := range batches {
			if len(batch) > test.size {
				t.Errorf("n=%d size=%d batch %d has %d items", test.n, test.size, i, len(batch))
			}
			if i < len(batches)-1 && len(batch) != test.size {
				t.Errorf("n=%d size=%d non-final batch %d has %d items", test.n, test.size, i, len(batch))
			}
			rejoined = append(rejoined, batch...)
		}

		if len(rejoined) != test.n {
			t.Errorf("n=%d size=%d batches rejoin to %d items", test.n, test.size, len(rejoined))
			continue
		}
		for i := range rejoined {
			if !reflect.DeepEqual(rejoined[i], items[i]) {
				t.Errorf("n=%d size=%d item %d reordered", test.n, test.size, i)
			}
		}
	}
}
