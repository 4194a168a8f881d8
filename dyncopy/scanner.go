// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/juju/ratelimit"
)

// DynScanner defines the portion of the DynamoDB service that Scanner
// requires.
type DynScanner interface {
	Scan(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
}

// ScannerStats is returned by Scanner.Stats to report progress of an
// ongoing or completed scan.
type ScannerStats struct {
	ItemsRead int64
	BytesRead int64
}

// Scanner reads the full contents of a table by dividing it into
// independently paginated segments scanned concurrently.  Segments
// partition the keyspace disjointly, so the union of their results holds
// each item exactly once.
type Scanner struct {
	Dyn            DynScanner
	TableName      string
	Segments       int     // Degree of parallelism; defaults to the host CPU count.
	ConsistentRead bool    // Strongly consistent reads use double the read capacity.
	ReadCapacity   float64 // Average read capacity to consume; 0 for unlimited.

	// KeyAttrs restricts the scan to the named attributes.  Used to fetch
	// key-only projections when the items are only needed for deletion.
	KeyAttrs []string

	rateLimit   *ratelimit.Bucket
	itemsRead   int64
	bytesRead   int64
	stopRequest chan struct{}
	stopNotify  chan struct{}

	mu    sync.Mutex
	items []map[string]*dynamodb.AttributeValue
}

// Scan runs every segment to completion and returns the union of the
// items read.  A failure in any segment stops the others and fails the
// whole scan.
func (s *Scanner) Scan() ([]map[string]*dynamodb.AttributeValue, error) {
	segments := s.Segments
	if segments < 1 {
		segments = runtime.NumCPU()
	}
	s.initStop()
	s.items = nil

	if s.ReadCapacity > 0 {
		s.rateLimit = ratelimit.NewBucketWithQuantum(time.Second, int64(s.ReadCapacity), int64(s.ReadCapacity))
	}

	go func() {
		<-s.stopRequest
		close(s.stopNotify) // fanout
	}()

	errChan := make(chan error, segments)
	for i := 0; i < segments; i++ {
		go s.processSegment(int64(i), int64(segments), errChan)
	}

	var err error
	// wait for all segments to finish
	for i := 0; i < segments; i++ {
		if werr := <-errChan; werr != nil {
			if err == nil {
				err = werr
				s.stopRequest <- struct{}{}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return s.items, nil
}

// Stop requests a clean shutdown of active segment readers.  Active
// readers complete their current page request and then exit.
func (s *Scanner) Stop() {
	s.initStop()
	s.stopRequest <- struct{}{}
}

// Stats returns aggregate statistics about an ongoing or completed scan.
// It is safe to call from concurrent goroutines.
func (s *Scanner) Stats() ScannerStats {
	return ScannerStats{
		ItemsRead: atomic.LoadInt64(&s.itemsRead),
		BytesRead: atomic.LoadInt64(&s.bytesRead),
	}
}

func (s *Scanner) initStop() {
	s.mu.Lock()
	if s.stopRequest == nil {
		s.stopRequest = make(chan struct{}, 2)
		s.stopNotify = make(chan struct{})
	}
	s.mu.Unlock()
}

func (s *Scanner) isStopped() bool {
	select {
	case <-s.stopNotify:
		return true
	default:
		return false
	}
}

// Interruptible rate limit wait.  Returns true if the scan was stopped
// while waiting.
func (s *Scanner) waitForRateLimit(usedCapacity int64) bool {
	d := s.rateLimit.Take(usedCapacity)
	if d > 0 {
		select {
		case <-time.After(d):
			return false
		case <-s.stopNotify:
			return true
		}
	}
	return false
}

// process a single segment.  executed in a separate goroutine by Scan.
func (s *Scanner) processSegment(segment, totalSegments int64, doneChan chan<- error) {
	params := &dynamodb.ScanInput{
		TableName:              aws.String(s.TableName),
		ConsistentRead:         aws.Bool(s.ConsistentRead),
		Segment:                aws.Int64(segment),
		TotalSegments:          aws.Int64(totalSegments),
		ReturnConsumedCapacity: aws.String(dynamodb.ReturnConsumedCapacityTotal),
	}
	if len(s.KeyAttrs) > 0 {
		names := make(map[string]*string, len(s.KeyAttrs))
		exprs := make([]string, 0, len(s.KeyAttrs))
		for _, attr := range s.KeyAttrs {
			names["#"+attr] = aws.String(attr)
			exprs = append(exprs, "#"+attr)
		}
		params.ProjectionExpression = aws.String(strings.Join(exprs, ", "))
		params.ExpressionAttributeNames = names
	} else {
		params.Select = aws.String(dynamodb.SelectAllAttributes)
	}

	usedCapacity := int64(1)
	for {
		if s.rateLimit != nil {
			if stopped := s.waitForRateLimit(usedCapacity); stopped {
				break
			}
		}
		if s.isStopped() {
			break
		}

		resp, err := s.Dyn.Scan(params)
		if err != nil {
			doneChan <- fmt.Errorf("scan of %s failed: %v", s.TableName, err)
			return
		}

		var respSize int64
		for _, item := range resp.Items {
			respSize += int64(calcItemSize(item))
		}
		s.mu.Lock()
		s.items = append(s.items, resp.Items...)
		s.mu.Unlock()

		atomic.AddInt64(&s.itemsRead, int64(len(resp.Items)))
		atomic.AddInt64(&s.bytesRead, respSize)
		if resp.ConsumedCapacity != nil {
			usedCapacity = int64(math.Ceil(aws.Float64Value(resp.ConsumedCapacity.CapacityUnits)))
		}

		if resp.LastEvaluatedKey == nil {
			// segment exhausted
			break
		}
		params.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	doneChan <- nil
}
