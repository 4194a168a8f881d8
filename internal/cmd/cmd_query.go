// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	cli "github.com/jawher/mow.cli"

	"github.com/dynotools/dyncopy/dyncopy"
)

func RegisterQueryCommand(app *cli.Cli) {
	app.Command("query", "Query a table by partition key and print or export the results", func(cmd *cli.Cmd) {
		cmd.Spec = "TABLENAME --env --pk [--sk] [--index] [(--filter-attr --filter-value)] " +
			"[--unique | --head] [--out]"
		action := &querier{
			tableName: cmd.StringArg("TABLENAME", "",
				"Name of the table to query"),
			env: cmd.String(cli.StringOpt{
				Name:   "e env",
				Value:  "",
				Desc:   "AWS shared config profile of the environment to query",
				EnvVar: "AWS_ENV",
			}),
			hashValue: cmd.String(cli.StringOpt{
				Name:  "pk",
				Value: "",
				Desc:  "Partition key value to match",
			}),
			rangePrefix: cmd.String(cli.StringOpt{
				Name:  "sk",
				Value: "",
				Desc:  "Range key prefix to match",
			}),
			indexName: cmd.String(cli.StringOpt{
				Name:  "index",
				Value: "",
				Desc:  "Global secondary index to query instead of the base table",
			}),
			filterAttr: cmd.String(cli.StringOpt{
				Name:  "filter-attr",
				Value: "",
				Desc:  "Attribute name to apply a begins_with filter to",
			}),
			filterValue: cmd.String(cli.StringOpt{
				Name:  "filter-value",
				Value: "",
				Desc:  "Prefix the filtered attribute must begin with",
			}),
			uniqueAttr: cmd.String(cli.StringOpt{
				Name:  "u unique",
				Value: "",
				Desc:  "Print the distinct string values of this attribute instead of a count",
			}),
			head: cmd.Bool(cli.BoolOpt{
				Name:  "head",
				Value: false,
				Desc:  "Pretty-print the first matching item",
			}),
			outFile: cmd.String(cli.StringOpt{
				Name:  "o out",
				Value: "",
				Desc:  "Write all matching items to this file as JSON, one item per line",
			}),
			awsRetries: cmd.Int(cli.IntOpt{
				Name:   "max-retries",
				Value:  awsMaxRetries,
				Desc:   "Maximum number of retry attempts to make with AWS services before failing",
				EnvVar: "AWS_MAX_RETRIES",
			}),
		}
		cmd.Action = action.run
	})
}

type querier struct {
	// options
	tableName   *string
	env         *string
	hashValue   *string
	rangePrefix *string
	indexName   *string
	filterAttr  *string
	filterValue *string
	uniqueAttr  *string
	head        *bool
	outFile     *string
	awsRetries  *int
}

func (q *querier) run() {
	dyn := initAWS(*q.env, *q.awsRetries)
	table, err := dyncopy.NewTable(dyn, *q.env, *q.tableName)
	if err != nil {
		fail("%v", err)
	}

	items, err := (&dyncopy.Query{
		Dyn:         dyn,
		Table:       table,
		HashValue:   *q.hashValue,
		RangePrefix: *q.rangePrefix,
		IndexName:   *q.indexName,
		FilterAttr:  *q.filterAttr,
		FilterValue: *q.filterValue,
	}).Run()
	if err != nil {
		fail("Query failed: %v", err)
	}

	if len(items) == 0 {
		fmt.Println("No item was found.")
		return
	}
	fmt.Printf("%d items queried.\n", len(items))

	switch {
	case *q.head:
		data, err := dyncopy.EncodeItem(items[0])
		if err != nil {
			fail("Failed to encode item: %v", err)
		}
		fmt.Println(string(data))

	case *q.uniqueAttr != "":
		for _, value := range uniqueValues(items, *q.uniqueAttr) {
			fmt.Println(value)
		}
	}

	if *q.outFile != "" {
		if err := q.writeItems(items); err != nil {
			fail("Failed to write items to %s: %v", *q.outFile, err)
		}
		fmt.Printf("Wrote %d items to %s\n", len(items), *q.outFile)
	}
}

func (q *querier) writeItems(items []map[string]*dynamodb.AttributeValue) error {
	f, err := os.Create(*q.outFile)
	if err != nil {
		return err
	}
	enc := dyncopy.NewItemEncoder(f)
	for _, item := range items {
		if err := enc.WriteItem(item); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// uniqueValues collects the distinct string values of one attribute,
// sorted.  Items missing the attribute or holding a non-string value are
// skipped.
func uniqueValues(items []map[string]*dynamodb.AttributeValue, attr string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, item := range items {
		av := item[attr]
		if av == nil || av.S == nil {
			continue
		}
		if s := aws.StringValue(av.S); !seen[s] {
			seen[s] = true
			values = append(values, s)
		}
	}
	sort.Strings(values)
	return values
}
