// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

func TestItemEncoderRoundTrip(t *testing.T) {
	items := []map[string]*dynamodb.AttributeValue{
		{
			"pk":  {S: aws.String("p1")},
			"num": {N: aws.String("42")},
			"set": {SS: []*string{aws.String("a"), aws.String("b")}},
		},
		{
			"pk":   {S: aws.String("p2")},
			"flag": {BOOL: aws.Bool(true)},
			"nested": {M: map[string]*dynamodb.AttributeValue{
				"inner": {L: []*dynamodb.AttributeValue{{N: aws.String("1")}}},
			}},
		},
	}

	var buf bytes.Buffer
	enc := NewItemEncoder(&buf)
	for _, item := range items {
		if err := enc.WriteItem(item); err != nil {
			t.Fatal("unexpected error from WriteItem", err)
		}
	}

	dec := NewItemDecoder(&buf)
	var got []map[string]*dynamodb.AttributeValue
	for {
		item, err := dec.ReadItem()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal("unexpected error from ReadItem", err)
		}
		got = append(got, item)
	}

	if len(got) != len(items) {
		t.Fatalf("expected %d items back, got %d", len(items), len(got))
	}
	if aws.StringValue(got[0]["pk"].S) != "p1" || aws.StringValue(got[0]["num"].N) != "42" {
		t.Errorf("first item corrupted: %v", got[0])
	}
	if len(got[0]["set"].SS) != 2 {
		t.Errorf("string set corrupted: %v", got[0]["set"])
	}
	if !aws.BoolValue(got[1]["flag"].BOOL) {
		t.Errorf("bool corrupted: %v", got[1]["flag"])
	}
	inner := got[1]["nested"].M["inner"]
	if inner == nil || len(inner.L) != 1 || aws.StringValue(inner.L[0].N) != "1" {
		t.Errorf("nested attribute corrupted: %v", got[1]["nested"])
	}
}

// Unset attribute fields must not leak into the encoded output.
func TestEncodeItemOmitsEmpty(t *testing.T) {
	data, err := EncodeItem(map[string]*dynamodb.AttributeValue{
		"pk": {S: aws.String("p1")},
	})
	if err != nil {
		t.Fatal("unexpected error from EncodeItem", err)
	}
	s := string(data)
	if !strings.Contains(s, `"S": "p1"`) {
		t.Errorf("string value missing from output: %s", s)
	}
	for _, field := range []string{`"N"`, `"BOOL"`, `"NULL"`, `"SS"`, `"M"`, `"L"`} {
		if strings.Contains(s, field) {
			t.Errorf("unset field %s leaked into output: %s", field, s)
		}
	}
}
