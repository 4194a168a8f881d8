// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

/*
Command dyncopy copies DynamoDB tables and selected items between AWS
environments.

Environments are AWS shared config profiles; each subcommand selects the
profile to operate against with --env, or --source and --target for
copies.  A full copy backs up the target with an on-demand backup and
empties it before loading the source's items; a selective copy (--pk)
replaces only the items matching a partition key value, optionally
narrowed by a range key prefix or run against a secondary index.

Tables may also be queried, backed up on demand, or restored from a
backup table previously created with the copy of a table.
*/
package main

import (
	"os"

	cli "github.com/jawher/mow.cli"

	"github.com/dynotools/dyncopy/internal/cmd"
)

const version = "1.0.0"

func main() {
	app := cli.App("dyncopy", "Copy, query, back up and restore DynamoDB tables across AWS environments")
	app.Version("v version", "dyncopy "+version)

	cmd.RegisterCopyCommand(app)
	cmd.RegisterQueryCommand(app)
	cmd.RegisterBackupCommand(app)
	cmd.RegisterRestoreCommand(app)

	app.Run(os.Args)
}
