package replication

import "errors"

var ErrReplicationFailed = errors.New("replication failed")
