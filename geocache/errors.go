// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"errors"
	"fmt"
	"time"
)

// CorruptError reports a cache file whose contents are not a valid store.
// A corrupt cache can't be trusted for reads or writes; callers must stop.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("geocode cache %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// LockTimeoutError reports that the cache lock could not be acquired in time,
// most likely because another process is stuck holding it.
type LockTimeoutError struct {
	Path      string
	Exclusive bool
	Wait      time.Duration
}

func (e *LockTimeoutError) Error() string {
	mode := "shared"
	if e.Exclusive {
		mode = "exclusive"
	}

	return fmt.Sprintf("timed out after %v waiting for %s lock on %s", e.Wait, mode, e.Path)
}

// IsCorrupt reports whether err is, or wraps, a *CorruptError.
func IsCorrupt(err error) bool {
	var corrupt *CorruptError

	return errors.As(err, &corrupt)
}

// IsLockTimeout reports whether err is, or wraps, a *LockTimeoutError.
func IsLockTimeout(err error) bool {
	var timeout *LockTimeoutError

	return errors.As(err, &timeout)
}
