package proxy

import "errors"

// ErrUpstreamUnavailable means the leader or read target could not be reached
// or did not answer in time. It never means the key is absent.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
