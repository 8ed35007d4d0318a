package model

import (
	"fmt"
	"strings"
)

// ValidationError signals that an inbound or outbound entity failed schema
// checks. Inbound occurrences are poison-pill discards; outbound ones abort
// the candle before it reaches any sink.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s.%s: %s", e.Entity, e.Field, e.Reason)
}

// TransientConnectError wraps a connect failure to bus, store or cache that
// is eligible for bounded retry.
type TransientConnectError struct {
	Target string
	Err    error
}

func (e *TransientConnectError) Error() string {
	return fmt.Sprintf("transient connect to %s: %v", e.Target, e.Err)
}

func (e *TransientConnectError) Unwrap() error { return e.Err }

// BusPublishError signals a publish-ack failure. Never retried by the core.
type BusPublishError struct {
	Subject string
	Err     error
}

func (e *BusPublishError) Error() string {
	return fmt.Sprintf("bus publish to %s failed: %v", e.Subject, e.Err)
}

func (e *BusPublishError) Unwrap() error { return e.Err }

// StorePersistError signals a columnar store insert failure.
type StorePersistError struct {
	Table string
	Err   error
}

func (e *StorePersistError) Error() string {
	return fmt.Sprintf("store insert into %s failed: %v", e.Table, e.Err)
}

func (e *StorePersistError) Unwrap() error { return e.Err }

// CacheError signals a hot-cache update failure. Always warned and ignored.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache update for %s failed: %v", e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ConsumerMismatchError signals one of the three bus-reported conflicts that
// trigger the durable-consumer reset protocol.
type ConsumerMismatchError struct {
	Reason string
}

func (e *ConsumerMismatchError) Error() string {
	return fmt.Sprintf("consumer mismatch: %s", e.Reason)
}

// consumerMismatchReasons are the exact conflict strings C1's bootstrap
// protocol recognises as resettable rather than fatal.
var consumerMismatchReasons = map[string]bool{
	"duplicate subscription":            true,
	"durable requires":                  true,
	"subject does not match consumer":   true,
}

// IsConsumerMismatch reports whether err's message matches one of the
// recognised conflict reasons.
func IsConsumerMismatch(errMsg string) bool {
	for reason := range consumerMismatchReasons {
		if strings.Contains(errMsg, reason) {
			return true
		}
	}
	return false
}
