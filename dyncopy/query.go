// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// defaultPageSize is the per-page item limit used when paginating a
// query.
const defaultPageSize = 200

// DynQuerier defines the portion of the DynamoDB service that Query
// requires.
type DynQuerier interface {
	Query(input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
}

// Query fetches every item matching a hash key value, optionally narrowed
// to a range key prefix, an attribute value prefix filter, or scoped to a
// secondary index.  An empty result is returned as an empty slice, not an
// error.
type Query struct {
	Dyn       DynQuerier
	Table     *Table
	HashValue string

	// RangePrefix, when set, matches only items whose range key begins
	// with the prefix.
	RangePrefix string

	// IndexName scopes the query to a global secondary index; the
	// index's own key names are resolved and used in its place.
	IndexName string

	// FilterAttr/FilterValue, when set, add a begins_with filter on an
	// arbitrary attribute, applied by the service after the key
	// condition.
	FilterAttr  string
	FilterValue string

	PageSize int64 // Defaults to 200.
}

// Run executes the query across as many pages as needed and returns the
// union of the items read.
func (q *Query) Run() ([]map[string]*dynamodb.AttributeValue, error) {
	hashKey, rangeKey := q.Table.HashKey, q.Table.RangeKey
	if q.IndexName != "" {
		var err error
		hashKey, rangeKey, err = q.Table.SecondaryKeySchema(q.IndexName)
		if err != nil {
			return nil, err
		}
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	params := &dynamodb.QueryInput{
		TableName: aws.String(q.Table.Name),
		Limit:     aws.Int64(pageSize),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":h": {S: aws.String(q.HashValue)},
		},
	}
	if q.IndexName != "" {
		// An index may project only a subset of attributes, so the
		// select mode is left to the service's default.
		params.IndexName = aws.String(q.IndexName)
	} else {
		params.Select = aws.String(dynamodb.SelectAllAttributes)
	}

	names := make(map[string]*string)
	if q.RangePrefix != "" {
		if rangeKey == "" {
			return nil, fmt.Errorf("table %s has no range key to match prefix %q against", q.Table.Name, q.RangePrefix)
		}
		params.KeyConditionExpression = aws.String(fmt.Sprintf("%s = :h AND begins_with ( #R, :p )", hashKey))
		names["#R"] = aws.String(rangeKey)
		params.ExpressionAttributeValues[":p"] = &dynamodb.AttributeValue{S: aws.String(q.RangePrefix)}
	} else {
		params.KeyConditionExpression = aws.String(fmt.Sprintf("%s = :h", hashKey))
	}
	if q.FilterAttr != "" {
		params.FilterExpression = aws.String("begins_with ( #F, :f )")
		names["#F"] = aws.String(q.FilterAttr)
		params.ExpressionAttributeValues[":f"] = &dynamodb.AttributeValue{S: aws.String(q.FilterValue)}
	}
	if len(names) > 0 {
		params.ExpressionAttributeNames = names
	}

	var items []map[string]*dynamodb.AttributeValue
	for {
		resp, err := q.Dyn.Query(params)
		if err != nil {
			return nil, fmt.Errorf("query of %s failed: %v", q.Table.Name, err)
		}
		items = append(items, resp.Items...)

		// A continuation key on a page that scanned nothing means the
		// service has no further matches to page through.
		if resp.LastEvaluatedKey == nil || aws.Int64Value(resp.ScannedCount) == 0 {
			break
		}
		params.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	return items, nil
}
