/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// RequestState is a lifecycle state of an upload request derived from its processing and cancellation flags.
type RequestState int

// Request states.
const (
	// RequestStateIdle means the request is neither being transferred nor cancelled.
	RequestStateIdle RequestState = iota
	// RequestStateProcessing means the transfer loop is copying bytes of the request.
	RequestStateProcessing
	// RequestStateCancelRequested means cancellation was asked while the transfer is still running.
	RequestStateCancelRequested
	// RequestStateReset means the transfer loop exited after the cancellation and the slot may be re-armed.
	RequestStateReset
)

// String returns the state name.
func (s RequestState) String() string {
	switch s {
	case RequestStateIdle:
		return "idle"
	case RequestStateProcessing:
		return "processing"
	case RequestStateCancelRequested:
		return "cancelRequested"
	case RequestStateReset:
		return "reset"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RequestState) UnmarshalText(text []byte) error {
	for _, st := range []RequestState{RequestStateIdle, RequestStateProcessing, RequestStateCancelRequested, RequestStateReset} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown request state %q", text)
}

// RequestConfig holds the processing state of a single upload request.
// Zero value is an idle request without assigned rate.
type RequestConfig struct {
	mu              sync.Mutex
	processing      bool
	cancelRequested bool
	rateAssigned    bool
	rateInKiloBytes int64

	paused             atomic.Bool
	instantRateInBytes atomic.Int64
}

// RequestConfigSnapshot is a point-in-time copy of RequestConfig.
type RequestConfigSnapshot struct {
	State              RequestState `json:"state"`
	Processing         bool         `json:"processing"`
	CancelRequested    bool         `json:"cancelRequested"`
	Paused             bool         `json:"paused"`
	RateInKiloBytes    *int64       `json:"rateInKiloBytes,omitempty"`
	InstantRateInBytes int64        `json:"instantRateInBytes"`
}

// IsProcessing reports whether the transfer loop is copying bytes of the request.
func (c *RequestConfig) IsProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// SetProcessing is called by the transfer loop when it starts (true) and finishes or aborts (false) copying.
func (c *RequestConfig) SetProcessing(processing bool) {
	c.mu.Lock()
	c.processing = processing
	c.mu.Unlock()
}

// IsCancelRequested returns the raw cancellation flag.
func (c *RequestConfig) IsCancelRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelRequested
}

// IsPaused reports whether copying should be suspended.
func (c *RequestConfig) IsPaused() bool {
	return c.paused.Load()
}

// RateInKiloBytes returns the rate ceiling assigned to the request, if any.
func (c *RequestConfig) RateInKiloBytes() (rate int64, assigned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateInKiloBytes, c.rateAssigned
}

// InstantRateInBytes returns the last reported throughput in bytes per second.
func (c *RequestConfig) InstantRateInBytes() int64 {
	return c.instantRateInBytes.Load()
}

// ReportInstantRate records the throughput (bytes per second) observed by the transfer loop.
func (c *RequestConfig) ReportInstantRate(bytesPerSecond int64) {
	c.instantRateInBytes.Store(bytesPerSecond)
}

// State returns the current lifecycle state.
func (c *RequestConfig) State() RequestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

// Snapshot returns a copy of the request configuration.
func (c *RequestConfig) Snapshot() RequestConfigSnapshot {
	c.mu.Lock()
	snap := RequestConfigSnapshot{
		State:           c.state(),
		Processing:      c.processing,
		CancelRequested: c.cancelRequested,
	}
	if c.rateAssigned {
		rate := c.rateInKiloBytes
		snap.RateInKiloBytes = &rate
	}
	c.mu.Unlock()

	snap.Paused = c.paused.Load()
	snap.InstantRateInBytes = c.instantRateInBytes.Load()
	return snap
}

func (c *RequestConfig) state() RequestState {
	switch {
	case c.cancelRequested && c.processing:
		return RequestStateCancelRequested
	case c.cancelRequested:
		return RequestStateReset
	case c.processing:
		return RequestStateProcessing
	}
	return RequestStateIdle
}

// markCancelIfProcessing asks for cancellation only if the request is being transferred.
func (c *RequestConfig) markCancelIfProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.processing {
		return false
	}
	c.cancelRequested = true
	return true
}

func (c *RequestConfig) isReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelRequested && !c.processing
}

func (c *RequestConfig) reset() {
	c.mu.Lock()
	c.cancelRequested = false
	c.processing = false
	c.mu.Unlock()
}

func (c *RequestConfig) assignRate(rateInKiloBytes int64) {
	c.mu.Lock()
	c.rateInKiloBytes = rateInKiloBytes
	c.rateAssigned = true
	c.mu.Unlock()
}
