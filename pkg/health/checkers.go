package health

import (
	"context"
	"time"
)

const (
	storageCheckTimeout  = 5 * time.Second
	keyValueCheckTimeout = 3 * time.Second
)

// Checkable is implemented by store adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports the health of a Checkable within a timeout.
type AdapterChecker struct {
	name    string
	kind    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a checker for adapter. A zero timeout means 5s.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = storageCheckTimeout
	}
	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// NewStorageChecker creates a checker for the document store.
func NewStorageChecker(name string, db Checkable) *AdapterChecker {
	c := NewAdapterChecker(name, db, storageCheckTimeout)
	c.kind = "storage"
	return c
}

// NewKeyValueChecker creates a checker for a cache or state store.
func NewKeyValueChecker(name string, kv Checkable) *AdapterChecker {
	c := NewAdapterChecker(name, kv, keyValueCheckTimeout)
	c.kind = "keyvalue"
	return c
}

// Check runs the adapter health check.
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if c.kind != "" {
		result.Metadata = map[string]interface{}{"kind": c.kind}
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// PingChecker always reports healthy; it backs liveness output.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{name: name}
}

// Check always returns healthy status
func (c *PingChecker) Check(context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "alive",
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}

// FailedChecker reports a dependency that could not be opened at all.
type FailedChecker struct {
	name string
	err  error
}

// NewFailedChecker returns a checker that always reports err.
func NewFailedChecker(name string, err error) *FailedChecker {
	return &FailedChecker{name: name, err: err}
}

// Check returns an unhealthy result carrying the open error.
func (c *FailedChecker) Check(context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusUnhealthy,
		Error:     c.err.Error(),
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *FailedChecker) Name() string {
	return c.name
}
