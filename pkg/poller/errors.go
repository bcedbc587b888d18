package poller

import "errors"

var (
	errAlreadyStarted = errors.New("poller already started")
	errStopped        = errors.New("poller stopped")
)
