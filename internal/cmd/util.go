// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package cmd

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	cli "github.com/jawher/mow.cli"
)

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
	tib = 1 << 40
)

func fmtBytes(bytes int64) string {
	switch {
	case bytes < 0:
		return "unknown"
	case bytes < kib:
		return fmt.Sprintf("%d bytes", bytes)
	case bytes < mib:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kib)
	case bytes < gib:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mib)
	case bytes < tib:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gib)
	default:
		return fmt.Sprintf("%.1f TB", float64(bytes)/tib)
	}
}

func fail(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	cli.Exit(100)
}

// initAWS returns a DynamoDB client for one environment, selecting the
// matching profile from the AWS shared config.
func initAWS(env string, maxRetries int) *dynamodb.DynamoDB {
	// Workaround for https://github.com/aws/aws-sdk-go/issues/1139
	r := &customRetryer{
		DefaultRetryer: &client.DefaultRetryer{
			NumMaxRetries: maxRetries,
		},
	}

	cfg := request.WithRetryer(aws.NewConfig(), r)

	s, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		Profile:           env,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		fail("Failed to create AWS session for %s: %v", env, err)
	}

	return dynamodb.New(s)
}

type customRetryer struct {
	*client.DefaultRetryer
}

func (cr *customRetryer) ShouldRetry(r *request.Request) bool {
	// Scan seems to frequently drop connections, which results in a
	// SerializationError; trap and force a retry.
	if r.Error != nil && r.Operation.Name == "Scan" {
		if err, ok := r.Error.(awserr.Error); ok {
			if err.Code() == "SerializationError" {
				return true
			}
		}
	}

	return cr.DefaultRetryer.ShouldRetry(r)
}
