// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// attributeValue is a copy of dynamodb.AttributeValue with json tags
// added so that unset entries are omitted from the encoded output.
type attributeValue struct {
	// A Binary data type.
	//
	// B is automatically base64 encoded/decoded by the SDK.
	B []byte `json:",omitempty"`

	// A Boolean data type.
	BOOL *bool `json:",omitempty"`

	// A Binary Set data type.
	BS [][]byte `json:",omitempty"`

	// A List of attribute values.
	L []*attributeValue `json:",omitempty"`

	// A Map of attribute values.
	M map[string]*attributeValue `json:",omitempty"`

	// A Number data type.
	N *string `json:",omitempty"`

	// A Number Set data type.
	NS []*string `json:",omitempty"`

	// A Null data type.
	NULL *bool `json:",omitempty"`

	// A String data type.
	S *string `json:",omitempty"`

	// A String Set data type.
	SS []*string `json:",omitempty"`
}

func toAttribute(src *dynamodb.AttributeValue) (dst *attributeValue) {
	dst = &attributeValue{
		B:    src.B,
		BOOL: src.BOOL,
		BS:   src.BS,
		N:    src.N,
		NS:   src.NS,
		NULL: src.NULL,
		S:    src.S,
		SS:   src.SS,
	}
	if src.L != nil {
		dst.L = make([]*attributeValue, len(src.L))
		for i := range src.L {
			dst.L[i] = toAttribute(src.L[i])
		}
	}
	if src.M != nil {
		dst.M = make(map[string]*attributeValue)
		for k, v := range src.M {
			dst.M[k] = toAttribute(v)
		}
	}
	return dst
}

func toJSONItem(item map[string]*dynamodb.AttributeValue) map[string]*attributeValue {
	newItem := make(map[string]*attributeValue, len(item))
	for k, v := range item {
		newItem[k] = toAttribute(v)
	}
	return newItem
}

// EncodeItem renders a single item as indented JSON, suitable for
// display.
func EncodeItem(item map[string]*dynamodb.AttributeValue) ([]byte, error) {
	return json.MarshalIndent(toJSONItem(item), "", "    ")
}

// ItemEncoder converts DynamoDB items to a JSON stream, one object per
// line.  Must support writes from concurrent goroutines.
type ItemEncoder struct {
	jw *json.Encoder
	m  sync.Mutex
}

// NewItemEncoder creates and initializes a new ItemEncoder.
func NewItemEncoder(w io.Writer) *ItemEncoder {
	return &ItemEncoder{
		jw: json.NewEncoder(w),
	}
}

// WriteItem JSON encodes a single item to the stream.
func (e *ItemEncoder) WriteItem(item map[string]*dynamodb.AttributeValue) error {
	e.m.Lock()
	err := e.jw.Encode(toJSONItem(item))
	e.m.Unlock()
	return err
}

// ItemDecoder converts a JSON stream produced by ItemEncoder back into
// DynamoDB items.
type ItemDecoder struct {
	jd *json.Decoder
}

// NewItemDecoder creates and initializes a new ItemDecoder.
func NewItemDecoder(r io.Reader) *ItemDecoder {
	return &ItemDecoder{
		jd: json.NewDecoder(r),
	}
}

// ReadItem decodes the next item from the stream.  Returns io.EOF when
// the stream is exhausted.
func (d *ItemDecoder) ReadItem() (item map[string]*dynamodb.AttributeValue, err error) {
	err = d.jd.Decode(&item)
	return item, err
}
