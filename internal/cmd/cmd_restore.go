// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Bowery/prompt"
	"github.com/cheggaaa/pb"
	cli "github.com/jawher/mow.cli"

	"github.com/dynotools/dyncopy/dyncopy"
)

func RegisterRestoreCommand(app *cli.Cli) {
	app.Command("restore", "Restore a table from a backup table and delete the backup", func(cmd *cli.Cmd) {
		cmd.Spec = "TABLENAME BACKUPTABLE --env [--parallel] [--max-write-retries] [--force]"
		action := &restorer{
			tableName: cmd.StringArg("TABLENAME", "",
				"Name of the table to restore into"),
			backupName: cmd.StringArg("BACKUPTABLE", "",
				"Name of the table holding the backup to restore from"),
			env: cmd.String(cli.StringOpt{
				Name:   "e env",
				Value:  "",
				Desc:   "AWS shared config profile of the environment holding both tables",
				EnvVar: "AWS_ENV",
			}),
			parallel: cmd.Int(cli.IntOpt{
				Name:   "p parallel",
				Value:  0,
				Desc:   "Number of concurrent scan segments and batch writers; 0 selects the CPU count",
				EnvVar: "MAX_PARALLEL",
			}),
			maxWriteRetries: cmd.Int(cli.IntOpt{
				Name:  "max-write-retries",
				Value: 0,
				Desc:  "Give up on a batch after this many unprocessed-item retries (0 retries forever)",
			}),
			force: cmd.Bool(cli.BoolOpt{
				Name:   "f force",
				Value:  false,
				Desc:   "Set to true to disable the confirmation prompt",
				EnvVar: "NO_RESTORE_PROMPT",
			}),
			awsRetries: cmd.Int(cli.IntOpt{
				Name:   "max-retries",
				Value:  awsMaxRetries,
				Desc:   "Maximum number of retry attempts to make with AWS services before failing",
				EnvVar: "AWS_MAX_RETRIES",
			}),
		}

		cmd.Before = func() {
			if *action.parallel < 0 || *action.parallel > maxParallel {
				fail("Invalid value for --parallel")
			}
			if *action.maxWriteRetries < 0 {
				fail("Invalid value for --max-write-retries")
			}
		}

		cmd.Action = actionRunner(cmd, action)
	})
}

type restorer struct {
	copier    *dyncopy.Copier
	startTime time.Time

	// options
	tableName       *string
	backupName      *string
	env             *string
	parallel        *int
	maxWriteRetries *int
	force           *bool
	awsRetries      *int
}

func (r *restorer) init() error {
	dyn := initAWS(*r.env, *r.awsRetries)

	backup, err := dyncopy.NewTable(dyn, *r.env, *r.backupName)
	if err != nil {
		return err
	}
	table, err := dyncopy.NewTable(dyn, *r.env, *r.tableName)
	if err != nil {
		return err
	}
	if !dyncopy.CompatibleNames(backup.Name, table.Name) {
		return &dyncopy.ConfigError{Source: backup.Name, Target: table.Name}
	}

	if !*r.force {
		question := fmt.Sprintf("Replace ALL %d items in %s (%s) with the %d items from %s, then delete %s",
			table.ItemCount, table.Name, table.Env, backup.ItemCount, backup.Name, backup.Name)
		ok, err := prompt.Ask(question)
		if err != nil {
			return fmt.Errorf("Could not prompt for confirmation (use --force to override): %v", err)
		}
		if !ok {
			return errors.New("User rejected restore")
		}
	}

	r.copier = &dyncopy.Copier{
		Source:     backup,
		Target:     table,
		SourceDyn:  dyn,
		TargetDyn:  dyn,
		Parallel:   *r.parallel,
		MaxRetries: *r.maxWriteRetries,
	}
	return nil
}

func (r *restorer) start(termWriter io.Writer, logger *log.Logger) (done chan error, err error) {
	r.copier.Log = logger
	backup, table := r.copier.Source, r.copier.Target

	status := fmt.Sprintf("Beginning restore: table=%q backup=%q env=%s itemCount=%d totalSize=%s",
		table.Name, backup.Name, table.Env, backup.ItemCount, fmtBytes(backup.SizeBytes))
	fmt.Fprintln(termWriter, status)
	logger.Println(status)

	done = make(chan error, 1)
	r.startTime = time.Now()

	go func() {
		err := r.copier.Restore()
		if err != nil {
			logger.Printf("Restore failed table=%s error=%v", table.Name, err)
		} else {
			logger.Printf("Restore completed OK table=%s", table.Name)
		}
		logger.Println("Final restore stats", r.formatStats())
		done <- err
	}()

	return done, nil
}

func (r *restorer) formatStats() string {
	stats := r.copier.Stats()
	return fmt.Sprintf("table=%s items_read=%d items_written=%d items_deleted=%d",
		*r.tableName, stats.ItemsRead, stats.ItemsWritten, stats.ItemsDeleted)
}

func (r *restorer) newProgressBar() *pb.ProgressBar {
	return pb.New64(r.copier.Target.ItemCount + r.copier.Source.ItemCount)
}

func (r *restorer) updateProgress(bar *pb.ProgressBar) {
	stats := r.copier.Stats()
	bar.Set64(stats.ItemsDeleted + stats.ItemsWritten)
}

func (r *restorer) logProgress(logger *log.Logger) {
	logger.Printf("Restore in progress - current stats %s", r.formatStats())
}

func (r *restorer) abort() {
	r.copier.Stop()
}

func (r *restorer) printFinalStats(w io.Writer) {
	stats := r.copier.Stats()
	fmt.Fprintf(w, "Items read: %d\n", stats.ItemsRead)
	fmt.Fprintf(w, "Items written: %d\n", stats.ItemsWritten)
	fmt.Fprintf(w, "Items deleted: %d\n", stats.ItemsDeleted)
}
