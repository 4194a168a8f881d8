// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Every item must be read exactly once, whatever the degree of
// parallelism.
func TestScanSegments(t *testing.T) {
	for _, parallel := range []int{1, 4, 16} {
		items := make([]map[string]*dynamodb.AttributeValue, 0, 100)
		for i := 0; i < 100; i++ {
			items = append(items, makeItem(fmt.Sprintf("p%03d", i), "s", "v"))
		}
		st := newFakeStore(items...)
		f := &fakeDyn{scanFn: st.scanHandler(7)}

		s := &Scanner{Dyn: f, TableName: "users", Segments: parallel, ConsistentRead: true}
		got, err := s.Scan()
		if err != nil {
			t.Fatalf("parallel=%d unexpected error: %v", parallel, err)
		}
		if len(got) != 100 {
			t.Errorf("parallel=%d expected 100 items, got %d", parallel, len(got))
		}
		seen := make(map[string]bool)
		for _, item := range got {
			k := itemKeyString(item)
			if seen[k] {
				t.Errorf("parallel=%d duplicate item %s", parallel, k)
			}
			seen[k] = true
		}
		if n := s.Stats().ItemsRead; n != 100 {
			t.Errorf("parallel=%d stats reported %d items read", parallel, n)
		}
	}
}

// A failure in any one segment fails the whole scan.
func TestScanSegmentError(t *testing.T) {
	items := make([]map[string]*dynamodb.AttributeValue, 0, 40)
	for i := 0; i < 40; i++ {
		items = append(items, makeItem(fmt.Sprintf("p%03d", i), "s", "v"))
	}
	st := newFakeStore(items...)
	handler := st.scanHandler(7)

	testErr := errors.New("segment read failure")
	f := &fakeDyn{
		scanFn: func(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			if aws.Int64Value(input.Segment) == 1 {
				return nil, testErr
			}
			return handler(input)
		},
	}

	s := &Scanner{Dyn: f, TableName: "users", Segments: 4, ConsistentRead: true}
	if _, err := s.Scan(); err == nil {
		t.Error("expected the scan to fail")
	}
}

// A keys-only scan must request a projection instead of all attributes.
func TestScanKeysProjection(t *testing.T) {
	f := &fakeDyn{
		scanFn: func(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			if input.Select != nil {
				t.Error("Select must not be combined with a projection")
			}
			if aws.StringValue(input.ProjectionExpression) != "#pk, #sk" {
				t.Errorf("incorrect projection: %q", aws.StringValue(input.ProjectionExpression))
			}
			if aws.StringValue(input.ExpressionAttributeNames["#pk"]) != "pk" ||
				aws.StringValue(input.ExpressionAttributeNames["#sk"]) != "sk" {
				t.Errorf("incorrect attribute names: %v", input.ExpressionAttributeNames)
			}
			return &dynamodb.ScanOutput{Count: aws.Int64(0), ScannedCount: aws.Int64(0)}, nil
		},
	}

	s := &Scanner{Dyn: f, TableName: "users", Segments: 1, KeyAttrs: []string{"pk", "sk"}}
	items, err := s.Scan()
	if err != nil {
		t.Fatal("unexpected error", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
