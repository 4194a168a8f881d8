// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

/*
Package dyncopy copies, backs up and restores DynamoDB tables across AWS
environments.

A full-table copy backs up the target, truncates it and repopulates it from
a parallel segmented scan of the source table.  A selective copy replaces
only the items matching a partition key value (and optionally a sort key
prefix), deleting the target's matching items before the replacements are
written.  Batch writes that the service declines due to throttling are
retried with an exponentially increasing delay until every item has been
accepted.
*/
package dyncopy
