package pairstore

import "fmt"

// ErrNotFound: no pair record is cached for the requested UDID.
var ErrNotFound = fmt.Errorf("pairstore: not found")
