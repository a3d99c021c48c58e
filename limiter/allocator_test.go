/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/service"
)

func assignedRate(t *testing.T, store *RequestConfigStore, id RequestID) int64 {
	t.Helper()
	rate, ok := store.UploadProcessingConfiguration(id).RateInKiloBytes()
	require.True(t, ok, "rate is not assigned")
	return rate
}

func TestRateAllocator_Allocate(t *testing.T) {
	tests := []struct {
		name          string
		perClient     int64
		overall       int64
		requests      []int // number of requests per client
		wantPerClient []int64
	}{
		{
			name:          "single request gets per-client ceiling",
			perClient:     1000,
			overall:       10000,
			requests:      []int{1},
			wantPerClient: []int64{1000},
		},
		{
			name:          "requests of one client share per-client ceiling",
			perClient:     1000,
			overall:       10000,
			requests:      []int{4},
			wantPerClient: []int64{250},
		},
		{
			name:          "overall ceiling caps the share",
			perClient:     1000,
			overall:       900,
			requests:      []int{1, 2},
			wantPerClient: []int64{300, 300},
		},
		{
			name:          "mixed",
			perClient:     600,
			overall:       2000,
			requests:      []int{1, 3},
			wantPerClient: []int64{500, 200},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewOperationRegistry()
			store, err := NewRequestConfigStore(nil, nil, RequestConfigStoreOpts{})
			require.NoError(t, err)
			master := NewMasterRateConfig(tt.perClient, tt.overall)
			a := NewRateAllocator(reg, store, master, nil)

			clientRequests := make([][]RequestID, len(tt.requests))
			total := 0
			for i, n := range tt.requests {
				c := uuid.New()
				for j := 0; j < n; j++ {
					r := uuid.New()
					reg.StartOperation(c, r)
					clientRequests[i] = append(clientRequests[i], r)
				}
				total += n
			}

			require.Equal(t, total, a.Allocate(context.Background()))
			for i, requests := range clientRequests {
				for _, r := range requests {
					require.Equal(t, tt.wantPerClient[i], assignedRate(t, store, r))
				}
			}
		})
	}
}

func TestRateAllocator_InstantRate(t *testing.T) {
	reg := NewOperationRegistry()
	store, err := NewRequestConfigStore(nil, nil, RequestConfigStoreOpts{})
	require.NoError(t, err)
	master := NewDefaultMasterRateConfig()
	a := NewRateAllocator(reg, store, master, nil)

	busy1, busy2, idle := uuid.New(), uuid.New(), uuid.New()
	for id, rate := range map[RequestID]int64{busy1: 1000, busy2: 3000, idle: 5000} {
		cfg := store.UploadProcessingConfiguration(id)
		cfg.ReportInstantRate(rate)
		cfg.SetProcessing(id != idle)
	}

	require.Zero(t, a.Allocate(context.Background()))
	require.EqualValues(t, 4000, master.InstantRateInBytes())
}

func TestRateAllocator_AsPeriodicWorker(t *testing.T) {
	reg := NewOperationRegistry()
	store, err := NewRequestConfigStore(nil, nil, RequestConfigStoreOpts{})
	require.NoError(t, err)
	a := NewRateAllocator(reg, store, NewMasterRateConfig(100, 100), nil)

	c, r := uuid.New(), uuid.New()
	reg.StartOperation(c, r)

	worker := service.NewPeriodicWorker(a, 10*time.Millisecond, log.NewDisabledLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		cfg, ok := store.Lookup(r)
		if !ok {
			return false
		}
		_, assigned := cfg.RateInKiloBytes()
		return assigned
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.EqualValues(t, 100, assignedRate(t, store, r))
}
