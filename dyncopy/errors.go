// Copyright 2019 the dyncopy authors
// Licensed under an MIT license
// See the LICENSE file for details

package dyncopy

import (
	"errors"
	"fmt"
)

// ErrAborted is returned by a Copier operation interrupted by Stop.
var ErrAborted = errors.New("operation aborted")

// ConfigError indicates an operation was refused before any remote call
// was made, because the source and target tables do not refer to the same
// logical table.
type ConfigError struct {
	Source string
	Target string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cannot copy between unrelated tables: %s != %s", e.Source, e.Target)
}
