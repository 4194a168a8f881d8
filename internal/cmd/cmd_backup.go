// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package cmd

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	cli "github.com/jawher/mow.cli"

	"github.com/dynotools/dyncopy/dyncopy"
)

func RegisterBackupCommand(app *cli.Cli) {
	app.Command("backup", "Create an on-demand backup of a table", func(cmd *cli.Cmd) {
		cmd.Spec = "TABLENAME --env"
		action := &backupper{
			tableName: cmd.StringArg("TABLENAME", "",
				"Name of the table to back up"),
			env: cmd.String(cli.StringOpt{
				Name:   "e env",
				Value:  "",
				Desc:   "AWS shared config profile of the environment holding the table",
				EnvVar: "AWS_ENV",
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

type backupper struct {
	// options
	tableName  *string
	env        *string
	awsRetries *int
}

func (b *backupper) run() {
	dyn := initAWS(*b.env, *b.awsRetries)
	table, err := dyncopy.NewTable(dyn, *b.env, *b.tableName)
	if err != nil {
		fail("%v", err)
	}

	resp, err := table.CreateBackup()
	if err != nil {
		fail("Backup of %s failed: %v", table.Name, err)
	}

	details := resp.BackupDetails
	fmt.Printf("Created backup %q of table %s (%s)\n",
		aws.StringValue(details.BackupName), table.Name, table.Env)
	fmt.Printf("Backup ARN: %s\n", aws.StringValue(details.BackupArn))
}
