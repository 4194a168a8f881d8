// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import "github.com/aws/aws-sdk-go/service/dynamodb"

// calcItemSize approximates an item's stored size: attribute name
// lengths plus value sizes, per the DynamoDB item size rules.  Used only
// for progress reporting.
func calcItemSize(item map[string]*dynamodb.AttributeValue) int {
	var size int
	for name, av := range item {
		size += len(name) + calcAttrSize(av)
	}
	return size
}

func calcAttrSize(av *dynamodb.AttributeValue) int {
	const setOverhead = 3

	switch {
	case av.B != nil:
		return len(av.B)
	case av.S != nil:
		return len(*av.S)
	case av.N != nil:
		return len(*av.N)
	case av.BOOL != nil, av.NULL != nil:
		return 1
	case av.L != nil:
		size := setOverhead
		for _, v := range av.L {
			size += calcAttrSize(v)
		}
		return size
	case av.M != nil:
		size := setOverhead
		for k, v := range av.M {
			size += len(k) + calcAttrSize(v)
		}
		return size
	case av.BS != nil:
		size := setOverhead
		for _, v := range av.BS {
			size += len(v)
		}
		return size
	case av.NS != nil:
		size := setOverhead
		for _, v := range av.NS {
			size += len(*v)
		}
		return size
	case av.SS != nil:
		size := setOverhead
		for _, v := range av.SS {
			size += len(*v)
		}
		return size
	}
	return 0
}
