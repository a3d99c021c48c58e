/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/log/logtest"

	"github.com/LimJW/go-large-file-uploader/filestate"
)

type providerFunc func(ctx context.Context, clientID uuid.UUID) (map[uuid.UUID]filestate.FileState, error)

func (f providerFunc) FileStates(ctx context.Context, clientID uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
	return f(ctx, clientID)
}

func TestInactivityDetector_Detect(t *testing.T) {
	clientID := uuid.New()

	tests := []struct {
		name          string
		provider      filestate.Provider
		wantDetected  bool
		wantLogMsg    string
		wantLogLevel  log.Level
		wantInactive  float64
		wantNatural   float64
		wantLookupErr float64
	}{
		{
			name: "incomplete file",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				return map[uuid.UUID]filestate.FileState{
					uuid.New(): {CrcedBytes: 100, OriginalFileSizeInBytes: 100},
					uuid.New(): {CrcedBytes: 50, OriginalFileSizeInBytes: 100},
				}, nil
			}),
			wantDetected: true,
			wantLogMsg:   "inactivity detected",
			wantLogLevel: log.LevelInfo,
			wantInactive: 1,
		},
		{
			name: "all files complete",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				return map[uuid.UUID]filestate.FileState{uuid.New(): {CrcedBytes: 100, OriginalFileSizeInBytes: 100}}, nil
			}),
			wantLogMsg:   "natural removal, all files are complete",
			wantLogLevel: log.LevelDebug,
			wantNatural:  1,
		},
		{
			name: "no files",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				return map[uuid.UUID]filestate.FileState{}, nil
			}),
			wantLogMsg:   "natural removal, all files are complete",
			wantLogLevel: log.LevelDebug,
			wantNatural:  1,
		},
		{
			name: "state not found",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				return nil, filestate.ErrNotFound
			}),
			wantLogMsg:   "natural removal, no persisted state",
			wantLogLevel: log.LevelDebug,
			wantNatural:  1,
		},
		{
			name: "lookup error",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				return nil, errors.New("connection refused")
			}),
			wantLogMsg:    "failed to get persisted file states, inactivity is not checked",
			wantLogLevel:  log.LevelWarn,
			wantLookupErr: 1,
		},
		{
			name: "provider panics",
			provider: providerFunc(func(context.Context, uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
				panic("boom")
			}),
			wantLogMsg:   "panic during inactivity detection: boom",
			wantLogLevel: log.LevelError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &eventRecorder{}
			logger := logtest.NewRecorder()
			mc := NewPrometheusMetrics("")
			d := NewInactivityDetectorWithOpts(tt.provider, events, logger, InactivityDetectorOpts{MetricsCollector: mc})

			detected := d.Detect(context.Background(), clientID, 2*time.Minute)
			require.Equal(t, tt.wantDetected, detected)

			if tt.wantDetected {
				require.Equal(t, []inactivityEvent{{clientID: clientID, window: 120}}, events.Events())
			} else {
				require.Empty(t, events.Events())
			}

			entry, found := logger.FindEntry(tt.wantLogMsg)
			require.True(t, found, "log entry %q not found", tt.wantLogMsg)
			require.Equal(t, tt.wantLogLevel, entry.Level)
			field, found := entry.FindField("client_id")
			require.True(t, found)
			require.Equal(t, clientID.String(), string(field.Bytes))

			require.Equal(t, tt.wantInactive, testutil.ToFloat64(mc.InactivityEventsTotal))
			require.Equal(t, tt.wantNatural, testutil.ToFloat64(mc.NaturalRemovalsTotal))
			require.Equal(t, tt.wantLookupErr, testutil.ToFloat64(mc.FileStateLookupFailuresTotal))
		})
	}
}

func TestInactivityDetector_LookupTimeout(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, _ uuid.UUID) (map[uuid.UUID]filestate.FileState, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	logger := logtest.NewRecorder()
	d := NewInactivityDetectorWithOpts(provider, nil, logger, InactivityDetectorOpts{LookupTimeout: 10 * time.Millisecond})

	require.False(t, d.Detect(context.Background(), uuid.New(), time.Second))
	_, found := logger.FindEntry("failed to get persisted file states, inactivity is not checked")
	require.True(t, found)
}

func TestInactivityDetector_NilListener(t *testing.T) {
	states := filestate.NewMemoryProvider()
	id := uuid.New()
	states.Put(id, uuid.New(), filestate.FileState{CrcedBytes: 1, OriginalFileSizeInBytes: 2})

	d := NewInactivityDetector(states, nil, nil)
	require.True(t, d.Detect(context.Background(), id, time.Second))
}

func TestPropagator(t *testing.T) {
	logger := logtest.NewRecorder()
	p := NewPropagator(logger)

	first, last := &eventRecorder{}, &eventRecorder{}
	p.Register(first)
	p.Register(InactivityListenerFunc(func(uuid.UUID, int) {
		panic("listener failure")
	}))
	p.Register(last)

	clientID := uuid.New()
	p.OnClientInactivity(clientID, 120)

	want := []inactivityEvent{{clientID: clientID, window: 120}}
	require.Equal(t, want, first.Events())
	require.Equal(t, want, last.Events())

	_, found := logger.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Level == log.LevelError && strings.HasPrefix(entry.Text, "inactivity listener panicked")
	})
	require.True(t, found)
}

func TestPropagator_NoListeners(t *testing.T) {
	require.NotPanics(t, func() {
		NewPropagator(nil).OnClientInactivity(uuid.New(), 1)
	})
}
