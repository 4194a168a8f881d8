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

func RegisterCopyCommand(app *cli.Cli) {
	app.Command("copy", "Copy a table's items from one environment to another", func(cmd *cli.Cmd) {
		cmd.Spec = "TABLENAME --source --target [--pk [--sk] [--index]] " +
			"[--parallel] [--read-capacity] [--max-write-retries] [--export-dir] [--force]"
		action := &tableCopier{
			tableName: cmd.StringArg("TABLENAME", "",
				"Name of the table to copy; must exist in both environments"),
			sourceEnv: cmd.String(cli.StringOpt{
				Name:   "s source",
				Value:  "",
				Desc:   "AWS shared config profile of the environment to copy from",
				EnvVar: "SOURCE_ENV",
			}),
			targetEnv: cmd.String(cli.StringOpt{
				Name:   "t target",
				Value:  "",
				Desc:   "AWS shared config profile of the environment to copy into",
				EnvVar: "TARGET_ENV",
			}),
			hashValue: cmd.String(cli.StringOpt{
				Name:  "pk",
				Value: "",
				Desc:  "Partition key value; copies only the matching items instead of the whole table",
			}),
			rangePrefix: cmd.String(cli.StringOpt{
				Name:  "sk",
				Value: "",
				Desc:  "Range key prefix to narrow a --pk copy",
			}),
			indexName: cmd.String(cli.StringOpt{
				Name:  "index",
				Value: "",
				Desc:  "Global secondary index to run a --pk copy against",
			}),
			parallel: cmd.Int(cli.IntOpt{
				Name:   "p parallel",
				Value:  0,
				Desc:   "Number of concurrent scan segments and batch writers; 0 selects the CPU count",
				EnvVar: "MAX_PARALLEL",
			}),
			readCapacity: cmd.Int(cli.IntOpt{
				Name:   "r read-capacity",
				Value:  0,
				Desc:   "Average aggregate read capacity to use for the source scan (0 for unlimited)",
				EnvVar: "READ_CAPACITY",
			}),
			maxWriteRetries: cmd.Int(cli.IntOpt{
				Name:  "max-write-retries",
				Value: 0,
				Desc:  "Give up on a batch after this many unprocessed-item retries (0 retries forever)",
			}),
			exportDir: cmd.String(cli.StringOpt{
				Name:  "export-dir",
				Value: ".",
				Desc:  "Directory to save replaced items to before a --pk copy deletes them; empty disables the export",
			}),
			force: cmd.Bool(cli.BoolOpt{
				Name:   "f force",
				Value:  false,
				Desc:   "Set to true to disable the confirmation prompt",
				EnvVar: "NO_COPY_PROMPT",
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
			if *action.readCapacity < 0 {
				fail("Invalid value for --read-capacity")
			}
			if *action.maxWriteRetries < 0 {
				fail("Invalid value for --max-write-retries")
			}
		}

		cmd.Action = actionRunner(cmd, action)
	})
}

type tableCopier struct {
	copier    *dyncopy.Copier
	startTime time.Time

	// options
	tableName       *string
	sourceEnv       *string
	targetEnv       *string
	hashValue       *string
	rangePrefix     *string
	indexName       *string
	parallel        *int
	readCapacity    *int
	maxWriteRetries *int
	exportDir       *string
	force           *bool
	awsRetries      *int
}

func (tc *tableCopier) selective() bool {
	return *tc.hashValue != ""
}

func (tc *tableCopier) init() error {
	srcDyn := initAWS(*tc.sourceEnv, *tc.awsRetries)
	tgtDyn := initAWS(*tc.targetEnv, *tc.awsRetries)

	source, err := dyncopy.NewTable(srcDyn, *tc.sourceEnv, *tc.tableName)
	if err != nil {
		return err
	}
	target, err := dyncopy.NewTable(tgtDyn, *tc.targetEnv, *tc.tableName)
	if err != nil {
		return err
	}

	if !*tc.force {
		var question string
		if tc.selective() {
			question = fmt.Sprintf("Replace items matching %s=%q in %s (%s) with the matching items from %s",
				source.HashKey, *tc.hashValue, target.Name, target.Env, source.Env)
		} else {
			question = fmt.Sprintf("Replace ALL %d items in %s (%s) with the %d items from %s",
				target.ItemCount, target.Name, target.Env, source.ItemCount, source.Env)
		}
		ok, err := prompt.Ask(question)
		if err != nil {
			return fmt.Errorf("Could not prompt for confirmation (use --force to override): %v", err)
		}
		if !ok {
			return errors.New("User rejected copy")
		}
	}

	tc.copier = &dyncopy.Copier{
		Source:       source,
		Target:       target,
		SourceDyn:    srcDyn,
		TargetDyn:    tgtDyn,
		Parallel:     *tc.parallel,
		ReadCapacity: float64(*tc.readCapacity),
		MaxRetries:   *tc.maxWriteRetries,
		ExportDir:    *tc.exportDir,
	}
	return nil
}

func (tc *tableCopier) start(termWriter io.Writer, logger *log.Logger) (done chan error, err error) {
	tc.copier.Log = logger
	source, target := tc.copier.Source, tc.copier.Target

	var status string
	if tc.selective() {
		status = fmt.Sprintf("Beginning selective copy: table=%q pk=%q sk=%q index=%q source=%s target=%s",
			source.Name, *tc.hashValue, *tc.rangePrefix, *tc.indexName, source.Env, target.Env)
	} else {
		status = fmt.Sprintf("Beginning copy: table=%q source=%s target=%s itemCount=%d totalSize=%s parallel=%d",
			source.Name, source.Env, target.Env, source.ItemCount, fmtBytes(source.SizeBytes), *tc.parallel)
	}
	fmt.Fprintln(termWriter, status)
	logger.Println(status)

	done = make(chan error, 1)
	tc.startTime = time.Now()

	go func() {
		var err error
		if tc.selective() {
			err = tc.copier.CopyItems(*tc.hashValue, *tc.rangePrefix, *tc.indexName)
		} else {
			err = tc.copier.CopyTable()
		}
		if err != nil {
			logger.Printf("Copy failed table=%s error=%v", source.Name, err)
		} else {
			logger.Printf("Copy completed OK table=%s", source.Name)
		}
		logger.Println("Final copy stats", tc.formatStats())
		done <- err
	}()

	return done, nil
}

func (tc *tableCopier) formatStats() string {
	stats := tc.copier.Stats()
	deltaSeconds := float64(time.Since(tc.startTime) / time.Second)
	if deltaSeconds < 1 {
		deltaSeconds = 1
	}
	return fmt.Sprintf("table=%s items_read=%d items_written=%d items_deleted=%d avg_items_sec=%.2f",
		*tc.tableName, stats.ItemsRead, stats.ItemsWritten, stats.ItemsDeleted,
		float64(stats.ItemsWritten)/deltaSeconds)
}

func (tc *tableCopier) newProgressBar() *pb.ProgressBar {
	if tc.selective() {
		// Matching item counts are unknown until the queries complete.
		return nil
	}
	return pb.New64(tc.copier.Target.ItemCount + tc.copier.Source.ItemCount)
}

func (tc *tableCopier) updateProgress(bar *pb.ProgressBar) {
	stats := tc.copier.Stats()
	bar.Set64(stats.ItemsDeleted + stats.ItemsWritten)
}

func (tc *tableCopier) logProgress(logger *log.Logger) {
	logger.Printf("Copy in progress - current stats %s", tc.formatStats())
}

func (tc *tableCopier) abort() {
	tc.copier.Stop()
}

func (tc *tableCopier) printFinalStats(w io.Writer) {
	stats := tc.copier.Stats()
	deltaSeconds := float64(time.Since(tc.startTime) / time.Second)
	if deltaSeconds < 1 {
		deltaSeconds = 1
	}
	fmt.Fprintf(w, "Items read: %d\n", stats.ItemsRead)
	fmt.Fprintf(w, "Items written: %d\n", stats.ItemsWritten)
	fmt.Fprintf(w, "Items deleted: %d\n", stats.ItemsDeleted)
	fmt.Fprintf(w, "Avg items/sec: %.2f\n", float64(stats.ItemsWritten)/deltaSeconds)
}
