/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/LimJW/go-large-file-uploader/lrucache"
)

// Store defaults.
const (
	DefaultClientEvictionTime = 120 * time.Second
	DefaultMaxRequests        = 100000
)

// RequestEntry is a tracked request and its configuration.
type RequestEntry struct {
	RequestID RequestID
	Config    *RequestConfig
}

// RequestConfigStoreOpts represents options for RequestConfigStore.
type RequestConfigStoreOpts struct {
	// EvictionTime is a duration after which a request configuration that was not accessed expires.
	// DefaultClientEvictionTime is used if it's zero.
	EvictionTime time.Duration

	// MaxRequests limits the number of tracked requests, the least recently used ones are evicted.
	// DefaultMaxRequests is used if it's zero.
	MaxRequests int

	// CacheMetricsCollector collects metrics of the underlying cache.
	CacheMetricsCollector lrucache.MetricsCollector

	// Clock returns the current time used for expiration. time.Now is used if it's nil.
	Clock func() time.Time
}

// RequestConfigStore keeps per-request processing configuration in an expiring cache.
// Any read or write of a request except Peek refreshes its expiration, and unknown requests get a default configuration.
//
// When a configuration expires (and only then, not on explicit or capacity removal),
// the store runs InactivityDetector for the identifier in a separate goroutine.
type RequestConfigStore struct {
	cache        *lrucache.LRUCache[RequestID, *RequestConfig]
	evictionTime time.Duration
	detector     *InactivityDetector
	logger       log.FieldLogger

	hooksMu      sync.Mutex
	hooksDone    *sync.Cond
	pendingHooks int
}

// NewRequestConfigStore creates a new RequestConfigStore.
// Detector may be nil, then expirations are only logged.
func NewRequestConfigStore(
	detector *InactivityDetector, logger log.FieldLogger, opts RequestConfigStoreOpts,
) (*RequestConfigStore, error) {
	if opts.EvictionTime < 0 {
		return nil, fmt.Errorf("eviction time should not be negative, got %s", opts.EvictionTime)
	}
	if opts.EvictionTime == 0 {
		opts.EvictionTime = DefaultClientEvictionTime
	}
	if opts.MaxRequests == 0 {
		opts.MaxRequests = DefaultMaxRequests
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	s := &RequestConfigStore{
		evictionTime: opts.EvictionTime,
		detector:     detector,
		logger:       logger,
	}
	s.hooksDone = sync.NewCond(&s.hooksMu)
	cache, err := lrucache.NewWithOpts[RequestID, *RequestConfig](
		opts.MaxRequests, opts.CacheMetricsCollector, lrucache.Options[RequestID, *RequestConfig]{
			DefaultTTL:        opts.EvictionTime,
			ExpireAfterAccess: true,
			OnRemoval:         s.onRemoval,
			Clock:             opts.Clock,
		})
	if err != nil {
		return nil, fmt.Errorf("new LRU cache for request configurations: %w", err)
	}
	s.cache = cache
	return s, nil
}

// EvictionTime returns the configured inactivity window.
func (s *RequestConfigStore) EvictionTime() time.Duration {
	return s.evictionTime
}

// MarkRequestHasShallBeCancelled asks the transfer loop to cancel the request.
// It returns true only if the request is tracked and being transferred right now;
// otherwise nothing is changed.
func (s *RequestConfigStore) MarkRequestHasShallBeCancelled(requestID RequestID) bool {
	cfg, ok := s.cache.Get(requestID)
	if !ok {
		return false
	}
	return cfg.markCancelIfProcessing()
}

// RequestIsReset reports whether the request was cancelled and the transfer loop has already exited.
func (s *RequestConfigStore) RequestIsReset(requestID RequestID) bool {
	return s.UploadProcessingConfiguration(requestID).isReset()
}

// RequestHasToBeCancelled returns the cancellation flag polled by the transfer loop.
func (s *RequestConfigStore) RequestHasToBeCancelled(requestID RequestID) bool {
	return s.UploadProcessingConfiguration(requestID).IsCancelRequested()
}

// Reset clears cancellation and processing flags, so the request may be uploaded again.
func (s *RequestConfigStore) Reset(requestID RequestID) {
	s.UploadProcessingConfiguration(requestID).reset()
}

// AssignRateToRequest stores the rate ceiling (KB/s) the shaper should enforce for the request.
func (s *RequestConfigStore) AssignRateToRequest(requestID RequestID, rateInKiloBytes int64) {
	s.UploadProcessingConfiguration(requestID).assignRate(rateInKiloBytes)
}

// GetUploadState returns the last reported throughput of the request in bytes per second.
func (s *RequestConfigStore) GetUploadState(requestID RequestID) int64 {
	return s.UploadProcessingConfiguration(requestID).InstantRateInBytes()
}

// Pause asks the transfer loop to suspend copying without cancelling the request.
func (s *RequestConfigStore) Pause(requestID RequestID) {
	s.UploadProcessingConfiguration(requestID).paused.Store(true)
}

// Resume undoes Pause.
func (s *RequestConfigStore) Resume(requestID RequestID) {
	s.UploadProcessingConfiguration(requestID).paused.Store(false)
}

// UploadProcessingConfiguration returns the configuration of the request creating a default one if needed.
// The transfer loop uses it to flip the processing flag and report the observed rate.
func (s *RequestConfigStore) UploadProcessingConfiguration(requestID RequestID) *RequestConfig {
	cfg, _ := s.cache.GetOrAdd(requestID, func() *RequestConfig { return &RequestConfig{} })
	return cfg
}

// Lookup returns the configuration of the request without creating it.
func (s *RequestConfigStore) Lookup(requestID RequestID) (*RequestConfig, bool) {
	return s.cache.Get(requestID)
}

// Peek returns the configuration of the request without creating it and without refreshing its expiration,
// so inspection does not keep an idle request alive.
func (s *RequestConfigStore) Peek(requestID RequestID) (*RequestConfig, bool) {
	return s.cache.Peek(requestID)
}

// GetRequestEntries returns a point-in-time list of tracked requests.
// Configurations are shared, not copied, so their flags may change after the call.
func (s *RequestConfigStore) GetRequestEntries() []RequestEntry {
	cacheEntries := s.cache.Entries()
	entries := make([]RequestEntry, 0, len(cacheEntries))
	for _, e := range cacheEntries {
		entries = append(entries, RequestEntry{RequestID: e.Key, Config: e.Value})
	}
	return entries
}

// Remove drops the configuration of the request. Inactivity detection is not triggered.
func (s *RequestConfigStore) Remove(requestID RequestID) bool {
	return s.cache.Remove(requestID)
}

// Len returns the number of tracked requests.
func (s *RequestConfigStore) Len() int {
	return s.cache.Len()
}

// CleanupExpired removes expired configurations and returns their number.
func (s *RequestConfigStore) CleanupExpired() int {
	return s.cache.CleanupExpired()
}

// RunPeriodicCleanup removes expired configurations every interval until ctx is done.
// Without it, expiration is noticed only when an expired request is accessed again.
func (s *RequestConfigStore) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	s.cache.RunPeriodicCleanup(ctx, interval)
}

// WaitForPendingHooks blocks until all started inactivity detections are finished.
// It may be called while new detections are being started, e.g. by concurrent reads of expired requests.
func (s *RequestConfigStore) WaitForPendingHooks() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	for s.pendingHooks > 0 {
		s.hooksDone.Wait()
	}
}

func (s *RequestConfigStore) startHook() {
	s.hooksMu.Lock()
	s.pendingHooks++
	s.hooksMu.Unlock()
}

func (s *RequestConfigStore) finishHook() {
	s.hooksMu.Lock()
	s.pendingHooks--
	if s.pendingHooks == 0 {
		s.hooksDone.Broadcast()
	}
	s.hooksMu.Unlock()
}

func (s *RequestConfigStore) onRemoval(requestID RequestID, _ *RequestConfig, cause lrucache.RemovalCause) {
	s.logger.Debug("request configuration removed",
		log.String("request_id", requestID.String()), log.String("cause", cause.String()))

	if cause != lrucache.RemovalCauseExpired || s.detector == nil {
		return
	}
	s.startHook()
	go func() {
		defer s.finishHook()
		s.detector.Detect(context.Background(), requestID, s.evictionTime)
	}()
}
