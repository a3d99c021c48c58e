/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"

	"github.com/acronis/go-appkit/log"
)

// RateAllocator splits master ceilings between in-flight requests and stores the result in RequestConfigStore.
// Each request of a client gets an equal part of the per-client ceiling,
// capped by an equal part of the overall ceiling among all in-flight requests.
//
// RateAllocator implements service.Worker, so it may be run periodically by service.PeriodicWorker.
type RateAllocator struct {
	registry *OperationRegistry
	store    *RequestConfigStore
	master   *MasterRateConfig
	logger   log.FieldLogger
}

// NewRateAllocator creates a new RateAllocator.
func NewRateAllocator(
	registry *OperationRegistry, store *RequestConfigStore, master *MasterRateConfig, logger log.FieldLogger,
) *RateAllocator {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &RateAllocator{registry: registry, store: store, master: master, logger: logger}
}

// Run performs one allocation pass. Implements service.Worker.
func (a *RateAllocator) Run(ctx context.Context) error {
	assigned := a.Allocate(ctx)
	a.logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
		logFunc("rates allocated",
			log.Int("requests", assigned),
			log.Int64("overall_instant_rate_bytes", a.master.InstantRateInBytes()))
	})
	return nil
}

// Allocate assigns rates to all in-flight requests and refreshes the overall instant rate.
// It returns the number of requests that got a rate.
func (a *RateAllocator) Allocate(ctx context.Context) int {
	snapshot := a.registry.Snapshot()

	total := 0
	for _, requests := range snapshot {
		total += len(requests)
	}

	assigned := 0
	if total > 0 {
		perClient := a.master.MaximumRatePerClientInKiloBytes()
		overallShare := a.master.MaximumOverAllRateInKiloBytes() / int64(total)
		for clientID, requests := range snapshot {
			if ctx.Err() != nil {
				break
			}
			assigned += a.allocateForClient(clientID, len(requests), perClient, overallShare)
		}
	}

	var overall int64
	for _, entry := range a.store.GetRequestEntries() {
		if entry.Config.IsProcessing() {
			overall += entry.Config.InstantRateInBytes()
		}
	}
	a.master.SetInstantRateInBytes(overall)

	return assigned
}

func (a *RateAllocator) allocateForClient(clientID ClientID, snapshotCount int, perClient, overallShare int64) int {
	handle, ok := a.registry.Handle(clientID)
	if !ok || snapshotCount == 0 {
		return 0 // The client has finished all its uploads since the snapshot.
	}
	handle.Lock()
	defer handle.Unlock()

	requests := a.registry.ActiveRequests(clientID)
	if len(requests) == 0 {
		return 0
	}
	rate := perClient / int64(len(requests))
	if overallShare < rate {
		rate = overallShare
	}
	for _, requestID := range requests {
		a.store.AssignRateToRequest(requestID, rate)
	}
	return len(requests)
}
