// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

const backupSuffix = "-backup"

// DynTable defines the portion of the DynamoDB service a Table requires
// to resolve key schemas and issue control-plane calls.
type DynTable interface {
	DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	CreateBackup(input *dynamodb.CreateBackupInput) (*dynamodb.CreateBackupOutput, error)
	DeleteTable(input *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error)
}

// Table identifies a single DynamoDB table within one AWS environment.
// The key schema is resolved once at construction; a Table is immutable
// afterwards.
type Table struct {
	Env       string // Environment (AWS shared config profile) holding the table.
	Name      string
	HashKey   string
	RangeKey  string // Empty if the table has no range key.
	ItemCount int64  // Approximate, as reported by DescribeTable.
	SizeBytes int64  // Approximate, as reported by DescribeTable.

	dyn DynTable
}

// NewTable looks up the key schema for the named table and returns a
// handle to it.  The supplied client determines which environment the
// handle operates against; env is recorded for reporting only.
func NewTable(dyn DynTable, env, name string) (*Table, error) {
	resp, err := dyn.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("describe of table %s in %s failed: %v", name, env, err)
	}

	t := &Table{
		Env:       env,
		Name:      name,
		ItemCount: aws.Int64Value(resp.Table.ItemCount),
		SizeBytes: aws.Int64Value(resp.Table.TableSizeBytes),
		dyn:       dyn,
	}
	for _, k := range resp.Table.KeySchema {
		switch aws.StringValue(k.KeyType) {
		case dynamodb.KeyTypeHash:
			t.HashKey = aws.StringValue(k.AttributeName)
		case dynamodb.KeyTypeRange:
			t.RangeKey = aws.StringValue(k.AttributeName)
		}
	}
	if t.HashKey == "" {
		return nil, fmt.Errorf("table %s in %s has no hash key", name, env)
	}
	return t, nil
}

// SecondaryKeySchema returns the hash and range key names of one of the
// table's global secondary indexes.
func (t *Table) SecondaryKeySchema(indexName string) (hashKey, rangeKey string, err error) {
	resp, err := t.dyn.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(t.Name),
	})
	if err != nil {
		return "", "", fmt.Errorf("describe of table %s in %s failed: %v", t.Name, t.Env, err)
	}

	for _, idx := range resp.Table.GlobalSecondaryIndexes {
		if aws.StringValue(idx.IndexName) != indexName {
			continue
		}
		for _, k := range idx.KeySchema {
			switch aws.StringValue(k.KeyType) {
			case dynamodb.KeyTypeHash:
				hashKey = aws.StringValue(k.AttributeName)
			case dynamodb.KeyTypeRange:
				rangeKey = aws.StringValue(k.AttributeName)
			}
		}
		return hashKey, rangeKey, nil
	}
	return "", "", fmt.Errorf("table %s has no secondary index named %s", t.Name, indexName)
}

// CreateBackup requests an on-demand backup of the table, named after the
// table with a "-backup" suffix, and returns the service's response.
func (t *Table) CreateBackup() (*dynamodb.CreateBackupOutput, error) {
	return t.dyn.CreateBackup(&dynamodb.CreateBackupInput{
		TableName:  aws.String(t.Name),
		BackupName: aws.String(t.Name + backupSuffix),
	})
}

// Delete removes the table from the service.
func (t *Table) Delete() error {
	_, err := t.dyn.DeleteTable(&dynamodb.DeleteTableInput{
		TableName: aws.String(t.Name),
	})
	return err
}

// keyAttrs lists the attribute names forming the table's primary key.
func (t *Table) keyAttrs() []string {
	if t.RangeKey == "" {
		return []string{t.HashKey}
	}
	return []string{t.HashKey, t.RangeKey}
}

// itemKey extracts the subset of an item's attributes matching the
// table's primary key.
func (t *Table) itemKey(item map[string]*dynamodb.AttributeValue) map[string]*dynamodb.AttributeValue {
	key := map[string]*dynamodb.AttributeValue{t.HashKey: item[t.HashKey]}
	if t.RangeKey != "" {
		key[t.RangeKey] = item[t.RangeKey]
	}
	return key
}
