// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// fakeDyn implements the Dyn* interfaces by dispatching to optional
// handler funcs, recording the order of service calls as it goes.
type fakeDyn struct {
	mu  sync.Mutex
	ops []string

	scanFn        func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	queryFn       func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	batchFn       func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	describeFn    func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	backupFn      func(*dynamodb.CreateBackupInput) (*dynamodb.CreateBackupOutput, error)
	deleteTableFn func(*dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error)
}

func (f *fakeDyn) logOp(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeDyn) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeDyn) Scan(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	f.logOp("Scan")
	if f.scanFn == nil {
		return nil, fmt.Errorf("unexpected Scan call")
	}
	return f.scanFn(input)
}

func (f *fakeDyn) Query(input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	f.logOp("Query")
	if f.queryFn == nil {
		return nil, fmt.Errorf("unexpected Query call")
	}
	return f.queryFn(input)
}

func (f *fakeDyn) BatchWriteItem(input *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
	f.logOp("BatchWriteItem")
	if f.batchFn == nil {
		return nil, fmt.Errorf("unexpected BatchWriteItem call")
	}
	return f.batchFn(input)
}

func (f *fakeDyn) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	f.logOp("DescribeTable")
	if f.describeFn == nil {
		return nil, fmt.Errorf("unexpected DescribeTable call")
	}
	return f.describeFn(input)
}

func (f *fakeDyn) CreateBackup(input *dynamodb.CreateBackupInput) (*dynamodb.CreateBackupOutput, error) {
	f.logOp("CreateBackup")
	if f.backupFn == nil {
		return nil, fmt.Errorf("unexpected CreateBackup call")
	}
	return f.backupFn(input)
}

func (f *fakeDyn) DeleteTable(input *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error) {
	f.logOp("DeleteTable")
	if f.deleteTableFn == nil {
		return nil, fmt.Errorf("unexpected DeleteTable call")
	}
	return f.deleteTableFn(input)
}

func makeItem(pk, sk, val string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"pk":  {S: aws.String(pk)},
		"sk":  {S: aws.String(sk)},
		"val": {S: aws.String(val)},
	}
}

func itemKeyString(item map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(item["pk"].S) + "|" + aws.StringValue(item["sk"].S)
}

func testTable(dyn DynTable, name string) *Table {
	return &Table{Env: "test", Name: name, HashKey: "pk", RangeKey: "sk", dyn: dyn}
}

// fakeStore is an in-memory table keyed by "pk|sk" strings, with a log
// of the write requests applied to it in service order.
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]map[string]*dynamodb.AttributeValue
	writeLog []string // "put:<key>" and "del:<key>" entries
}

func newFakeStore(items ...map[string]*dynamodb.AttributeValue) *fakeStore {
	st := &fakeStore{items: make(map[string]map[string]*dynamodb.AttributeValue)}
	for _, item := range items {
		st.items[itemKeyString(item)] = item
	}
	return st
}

func (st *fakeStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.items)
}

func (st *fakeStore) has(key string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.items[key]
	return ok
}

func (st *fakeStore) get(key string) map[string]*dynamodb.AttributeValue {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.items[key]
}

func (st *fakeStore) log() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.writeLog...)
}

// segmentOf deterministically assigns a key to one of total segments.
func segmentOf(key string, total int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(total))
}

// scanHandler serves segmented, paginated scans over the store's current
// contents.  Keys are served in sorted order so pagination with
// ExclusiveStartKey stays stable while earlier pages are deleted.
func (st *fakeStore) scanHandler(pageSize int) func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	return func(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		st.mu.Lock()
		defer st.mu.Unlock()

		total := int(aws.Int64Value(input.TotalSegments))
		if total < 1 {
			total = 1
		}
		segment := int(aws.Int64Value(input.Segment))

		keys := make([]string, 0, len(st.items))
		for k := range st.items {
			if segmentOf(k, total) == segment {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		start := 0
		if esk := input.ExclusiveStartKey; esk != nil {
			last := aws.StringValue(esk["k"].S)
			start = sort.SearchStrings(keys, last)
			if start < len(keys) && keys[start] == last {
				start++
			}
		}
		end := start + pageSize
		if end > len(keys) {
			end = len(keys)
		}
		page := keys[start:end]

		out := &dynamodb.ScanOutput{
			Count:            aws.Int64(int64(len(page))),
			ScannedCount:     aws.Int64(int64(len(page))),
			ConsumedCapacity: &dynamodb.ConsumedCapacity{CapacityUnits: aws.Float64(1)},
		}
		for _, k := range page {
			out.Items = append(out.Items, st.items[k])
		}
		if end < len(keys) {
			out.LastEvaluatedKey = map[string]*dynamodb.AttributeValue{
				"k": {S: aws.String(page[len(page)-1])},
			}
		}
		return out, nil
	}
}

// batchHandler applies put and delete requests to the store.
func (st *fakeStore) batchHandler() func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
	return func(input *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		st.mu.Lock()
		defer st.mu.Unlock()
		for _, reqs := range input.RequestItems {
			if len(reqs) > maxBatchSize {
				return nil, fmt.Errorf("batch of %d requests exceeds the service limit", len(reqs))
			}
			for _, req := range reqs {
				switch {
				case req.PutRequest != nil:
					k := itemKeyString(req.PutRequest.Item)
					st.items[k] = req.PutRequest.Item
					st.writeLog = append(st.writeLog, "put:"+k)
				case req.DeleteRequest != nil:
					k := itemKeyString(req.DeleteRequest.Key)
					delete(st.items, k)
					st.writeLog = append(st.writeLog, "del:"+k)
				}
			}
		}
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
}

// staticQuery returns every item in a single unpaginated page.
func staticQuery(items []map[string]*dynamodb.AttributeValue) func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	return func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		return &dynamodb.QueryOutput{
			Items:        items,
			Count:        aws.Int64(int64(len(items))),
			ScannedCount: aws.Int64(int64(len(items))),
		}, nil
	}
}
