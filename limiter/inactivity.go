/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/google/uuid"

	"github.com/LimJW/go-large-file-uploader/filestate"
)

// DefaultFileStateLookupTimeout is the default timeout for reading persisted file states during detection.
const DefaultFileStateLookupTimeout = 5 * time.Second

// InactivityListener is notified when a client stops uploading before its files are complete.
type InactivityListener interface {
	OnClientInactivity(clientID uuid.UUID, inactivityWindowSeconds int)
}

// InactivityListenerFunc is an adapter to allow the use of ordinary functions as InactivityListener.
type InactivityListenerFunc func(clientID uuid.UUID, inactivityWindowSeconds int)

// OnClientInactivity implements InactivityListener.
func (f InactivityListenerFunc) OnClientInactivity(clientID uuid.UUID, inactivityWindowSeconds int) {
	f(clientID, inactivityWindowSeconds)
}

// Propagator fans inactivity events out to all registered listeners.
// A panicking listener is logged and doesn't prevent others from being notified.
type Propagator struct {
	mu        sync.RWMutex
	listeners []InactivityListener
	logger    log.FieldLogger
}

var _ InactivityListener = (*Propagator)(nil)

// NewPropagator creates a new Propagator without listeners.
func NewPropagator(logger log.FieldLogger) *Propagator {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Propagator{logger: logger}
}

// Register adds a listener.
func (p *Propagator) Register(listener InactivityListener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, listener)
	p.mu.Unlock()
}

// OnClientInactivity implements InactivityListener.
func (p *Propagator) OnClientInactivity(clientID uuid.UUID, inactivityWindowSeconds int) {
	p.mu.RLock()
	listeners := append([]InactivityListener(nil), p.listeners...)
	p.mu.RUnlock()

	for _, listener := range listeners {
		p.notify(listener, clientID, inactivityWindowSeconds)
	}
}

func (p *Propagator) notify(listener InactivityListener, clientID uuid.UUID, inactivityWindowSeconds int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Sprintf("inactivity listener panicked: %+v", r), log.String("client_id", clientID.String()))
		}
	}()
	listener.OnClientInactivity(clientID, inactivityWindowSeconds)
}

// InactivityDetector classifies expired request configurations.
// An expiration is an inactivity when the persisted state says that at least one file of the identifier
// is not fully verified yet, otherwise it is a natural removal of a finished (or already cleaned up) upload.
type InactivityDetector struct {
	states           filestate.Provider
	listener         InactivityListener
	logger           log.FieldLogger
	lookupTimeout    time.Duration
	metricsCollector MetricsCollector
}

// InactivityDetectorOpts represents options for InactivityDetector.
type InactivityDetectorOpts struct {
	// LookupTimeout limits the persisted state lookup. DefaultFileStateLookupTimeout is used if it's zero.
	LookupTimeout time.Duration

	MetricsCollector MetricsCollector
}

// NewInactivityDetector creates a new InactivityDetector with default options.
func NewInactivityDetector(
	states filestate.Provider, listener InactivityListener, logger log.FieldLogger,
) *InactivityDetector {
	return NewInactivityDetectorWithOpts(states, listener, logger, InactivityDetectorOpts{})
}

// NewInactivityDetectorWithOpts creates a new InactivityDetector with the provided options.
func NewInactivityDetectorWithOpts(
	states filestate.Provider, listener InactivityListener, logger log.FieldLogger, opts InactivityDetectorOpts,
) *InactivityDetector {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.LookupTimeout == 0 {
		opts.LookupTimeout = DefaultFileStateLookupTimeout
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &InactivityDetector{
		states:           states,
		listener:         listener,
		logger:           logger,
		lookupTimeout:    opts.LookupTimeout,
		metricsCollector: opts.MetricsCollector,
	}
}

// Detect classifies the expiration of the identifier and notifies the listener
// once if the upload was abandoned. It returns true if the listener was notified.
// Lookup errors and panics are logged and never propagated.
func (d *InactivityDetector) Detect(ctx context.Context, id uuid.UUID, window time.Duration) (detected bool) {
	logger := d.logger.With(log.String("client_id", id.String()))
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("panic during inactivity detection: %+v", r))
			detected = false
		}
	}()

	if d.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.lookupTimeout)
		defer cancel()
	}

	states, err := d.states.FileStates(ctx, id)
	if err != nil {
		if errors.Is(err, filestate.ErrNotFound) {
			logger.Debug("natural removal, no persisted state")
			d.metricsCollector.IncNaturalRemovals()
			return false
		}
		logger.Warn("failed to get persisted file states, inactivity is not checked", log.Error(err))
		d.metricsCollector.IncFileStateLookupFailures()
		return false
	}

	for fileID, state := range states {
		if state.Complete() {
			continue
		}
		logger.Info("inactivity detected",
			log.String("file_id", fileID.String()),
			log.Int64("crced_bytes", state.CrcedBytes),
			log.Int64("original_file_size_bytes", state.OriginalFileSizeInBytes),
			log.Duration("inactivity_window", window))
		d.metricsCollector.IncInactivityEvents()
		if d.listener != nil {
			d.listener.OnClientInactivity(id, int(window/time.Second))
		}
		return true
	}

	logger.Debug("natural removal, all files are complete")
	d.metricsCollector.IncNaturalRemovals()
	return false
}
