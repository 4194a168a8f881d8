// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// CompatibleNames reports whether two table names refer to the same
// logical table.  A backup copy of a table keeps the original name as a
// substring, so either name containing the other is accepted.
func CompatibleNames(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// DynCopier groups the data-plane calls the Copier issues against one
// side of a copy.  *dynamodb.DynamoDB satisfies it.
type DynCopier interface {
	DynScanner
	DynQuerier
	DynBatchWriter
}

// CopierStats reports progress counters for an in-flight or completed
// operation.
type CopierStats struct {
	ItemsRead    int64
	ItemsWritten int64
	ItemsDeleted int64
}

// Copier sequences scans, queries and batch writes to replicate data
// between two tables holding the same logical data, usually in different
// AWS environments.
type Copier struct {
	Source    *Table
	Target    *Table
	SourceDyn DynCopier
	TargetDyn DynCopier

	// Parallel sets both the number of scan segments and the number of
	// concurrent batch writers.  Defaults to the host CPU count.
	Parallel int

	// ReadCapacity is passed through to the segmented scanner; 0 for
	// unlimited.
	ReadCapacity float64

	// InitialDelay and MaxRetries configure the batch writers' backoff
	// behavior.  See BatchWriter.
	InitialDelay time.Duration
	MaxRetries   int

	// Compatible decides whether the source and target names refer to
	// the same logical table.  Defaults to CompatibleNames.
	Compatible func(a, b string) bool

	// ExportDir is the directory CopyItems writes its JSON export of
	// replaced target items to before deleting them.  Empty disables
	// the export.
	ExportDir string

	// Log receives progress messages; nil discards them.
	Log *log.Logger

	mu            sync.Mutex
	scan          *Scanner
	trunc         *Truncator
	stopRequested bool
	read          int64
	written       int64
	deleted       int64

	sleep func(time.Duration) // forwarded to batch writers in tests
}

// CopyTable replaces the entire contents of the target table with the
// source table's items.  The target is backed up with an on-demand
// backup and truncated before the copy begins, so the only window where
// the target is incomplete is during the copy itself.
func (c *Copier) CopyTable() error {
	if !c.compatible() {
		return &ConfigError{Source: c.Source.Name, Target: c.Target.Name}
	}

	if _, err := c.Target.CreateBackup(); err != nil {
		return fmt.Errorf("backup of %s in %s failed: %v", c.Target.Name, c.Target.Env, err)
	}
	c.logf("created on-demand backup of %s in %s as %q", c.Target.Name, c.Target.Env, c.Target.Name+backupSuffix)

	deleted, err := c.truncateTarget()
	if err != nil {
		return err
	}
	c.logf("truncated %d items from %s in %s", deleted, c.Target.Name, c.Target.Env)

	items, err := c.scanSource()
	if err != nil {
		return err
	}
	if err := c.writeBatches(c.TargetDyn, c.Target, WriteOpPut, items); err != nil {
		return err
	}
	c.logf("copied %d items from %s in %s to %s in %s",
		len(items), c.Source.Name, c.Source.Env, c.Target.Name, c.Target.Env)
	return nil
}

// CopyItems replaces the target's items matching a hash key value (and
// optionally a range key prefix, or a secondary index scope) with the
// source's matching items.  The target's matches are deleted to
// completion before any replacement is written, so a key collision
// between old and new item shapes cannot leave a stale item behind.
func (c *Copier) CopyItems(hashValue, rangePrefix, indexName string) error {
	if !c.compatible() {
		return &ConfigError{Source: c.Source.Name, Target: c.Target.Name}
	}

	srcItems, err := (&Query{
		Dyn:         c.SourceDyn,
		Table:       c.Source,
		HashValue:   hashValue,
		RangePrefix: rangePrefix,
		IndexName:   indexName,
	}).Run()
	if err != nil {
		return err
	}
	tgtItems, err := (&Query{
		Dyn:         c.TargetDyn,
		Table:       c.Target,
		HashValue:   hashValue,
		RangePrefix: rangePrefix,
		IndexName:   indexName,
	}).Run()
	if err != nil {
		return err
	}

	if len(tgtItems) > 0 {
		if c.ExportDir != "" {
			path, err := c.exportItems(tgtItems)
			if err != nil {
				return fmt.Errorf("export of replaced items failed: %v", err)
			}
			c.logf("saved %d replaced items from %s in %s to %s", len(tgtItems), c.Target.Name, c.Target.Env, path)
		}
		if err := c.writeBatches(c.TargetDyn, c.Target, WriteOpDelete, tgtItems); err != nil {
			return err
		}
		c.logf("deleted %d items from %s in %s", len(tgtItems), c.Target.Name, c.Target.Env)
	}

	if err := c.writeBatches(c.TargetDyn, c.Target, WriteOpPut, srcItems); err != nil {
		return err
	}
	c.logf("put %d items to %s in %s", len(srcItems), c.Target.Name, c.Target.Env)
	return nil
}

// Restore rebuilds the target table from the backup table held as the
// source: the target is truncated, the backup's items are copied in, and
// the backup table is then deleted.
func (c *Copier) Restore() error {
	deleted, err := c.truncateTarget()
	if err != nil {
		return err
	}
	c.logf("truncated %d items from %s in %s", deleted, c.Target.Name, c.Target.Env)

	items, err := c.scanSource()
	if err != nil {
		return err
	}
	if err := c.writeBatches(c.TargetDyn, c.Target, WriteOpPut, items); err != nil {
		return err
	}
	if err := c.Source.Delete(); err != nil {
		return fmt.Errorf("deleting backup table %s failed: %v", c.Source.Name, err)
	}
	c.logf("restored %d items from %s to %s in %s; %s has been deleted",
		len(items), c.Source.Name, c.Target.Name, c.Target.Env, c.Source.Name)
	return nil
}

// Stop aborts the running operation at the next phase boundary.  An
// in-flight scan is stopped; batches already submitted are left in
// place.
func (c *Copier) Stop() {
	c.mu.Lock()
	c.stopRequested = true
	if c.scan != nil {
		c.scan.Stop()
	}
	c.mu.Unlock()
}

// Stats returns progress counters for the running operation.  Safe to
// call from concurrent goroutines.
func (c *Copier) Stats() CopierStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := CopierStats{
		ItemsRead:    c.read,
		ItemsWritten: c.written,
		ItemsDeleted: c.deleted,
	}
	if c.scan != nil {
		st.ItemsRead += c.scan.Stats().ItemsRead
	}
	if c.trunc != nil {
		st.ItemsDeleted += c.trunc.Deleted()
	}
	return st
}

func (c *Copier) compatible() bool {
	pred := c.Compatible
	if pred == nil {
		pred = CompatibleNames
	}
	return pred(c.Source.Name, c.Target.Name)
}

func (c *Copier) parallel() int {
	if c.Parallel > 0 {
		return c.Parallel
	}
	return runtime.NumCPU()
}

func (c *Copier) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

func (c *Copier) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

func (c *Copier) truncateTarget() (int64, error) {
	if c.isStopped() {
		return 0, ErrAborted
	}
	tr := &Truncator{
		Dyn:          c.TargetDyn,
		Table:        c.Target,
		InitialDelay: c.InitialDelay,
		MaxRetries:   c.MaxRetries,
		sleep:        c.sleep,
	}
	c.mu.Lock()
	c.trunc = tr
	c.mu.Unlock()

	n, err := tr.Run()

	c.mu.Lock()
	c.deleted += n
	c.trunc = nil
	c.mu.Unlock()
	return n, err
}

func (c *Copier) scanSource() ([]map[string]*dynamodb.AttributeValue, error) {
	s := &Scanner{
		Dyn:            c.SourceDyn,
		TableName:      c.Source.Name,
		Segments:       c.parallel(),
		ConsistentRead: true,
		ReadCapacity:   c.ReadCapacity,
	}
	s.initStop()

	c.mu.Lock()
	if c.stopRequested {
		c.mu.Unlock()
		return nil, ErrAborted
	}
	c.scan = s
	c.mu.Unlock()

	items, err := s.Scan()

	c.mu.Lock()
	c.read += s.Stats().ItemsRead
	c.scan = nil
	stopped := c.stopRequested
	c.mu.Unlock()

	if err == nil && stopped {
		return nil, ErrAborted
	}
	return items, err
}

// writeBatches drains every batch against the table through a bounded
// pool of concurrent batch writers, returning once all batches have been
// accepted or the first hard failure occurs.
func (c *Copier) writeBatches(dyn DynBatchWriter, t *Table, op WriteOp, items []map[string]*dynamodb.AttributeValue) error {
	if c.isStopped() {
		return ErrAborted
	}
	batches := batchItems(items, maxBatchSize)
	if len(batches) == 0 {
		return nil
	}

	w := &BatchWriter{
		Dyn:          dyn,
		Table:        t,
		Op:           op,
		InitialDelay: c.InitialDelay,
		MaxRetries:   c.MaxRetries,
		sleep:        c.sleep,
	}

	workers := c.parallel()
	if workers > len(batches) {
		workers = len(batches)
	}

	batchChan := make(chan []map[string]*dynamodb.AttributeValue)
	errChan := make(chan error, workers)
	stop := make(chan struct{})

	go func() {
		defer close(batchChan)
		for _, batch := range batches {
			select {
			case batchChan <- batch:
			case <-stop:
				return
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func() {
			for batch := range batchChan {
				if err := w.Write(batch); err != nil {
					errChan <- err
					return
				}
				c.mu.Lock()
				if op == WriteOpDelete {
					c.deleted += int64(len(batch))
				} else {
					c.written += int64(len(batch))
				}
				c.mu.Unlock()
			}
			errChan <- nil
		}()
	}

	var err error
	for i := 0; i < workers; i++ {
		if werr := <-errChan; werr != nil && err == nil {
			err = werr
			close(stop)
		}
	}
	return err
}

// exportItems writes the items about to be replaced to a timestamped
// JSON file so a botched selective copy can be undone by hand.
func (c *Copier) exportItems(items []map[string]*dynamodb.AttributeValue) (string, error) {
	name := fmt.Sprintf("%s-%s-replaced-%s.json",
		c.Target.Env, c.Target.Name, time.Now().Format("20060102T150405"))
	path := filepath.Join(c.ExportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	enc := NewItemEncoder(f)
	for _, item := range items {
		if err := enc.WriteItem(item); err != nil {
			f.Close()
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
