/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestConfig_State(t *testing.T) {
	tests := []struct {
		name            string
		processing      bool
		cancelRequested bool
		wantState       RequestState
		wantReset       bool
	}{
		{name: "idle", wantState: RequestStateIdle},
		{name: "processing", processing: true, wantState: RequestStateProcessing},
		{name: "cancel requested", processing: true, cancelRequested: true, wantState: RequestStateCancelRequested},
		{name: "reset", cancelRequested: true, wantState: RequestStateReset, wantReset: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &RequestConfig{processing: tt.processing, cancelRequested: tt.cancelRequested}
			require.Equal(t, tt.wantState, cfg.State())
			require.Equal(t, tt.wantReset, cfg.isReset())
		})
	}
}

func TestRequestConfig_Snapshot(t *testing.T) {
	cfg := &RequestConfig{}
	snap := cfg.Snapshot()
	require.Nil(t, snap.RateInKiloBytes)
	require.Equal(t, RequestStateIdle, snap.State)

	cfg.SetProcessing(true)
	cfg.assignRate(500)
	cfg.paused.Store(true)
	cfg.ReportInstantRate(4096)

	snap = cfg.Snapshot()
	require.NotNil(t, snap.RateInKiloBytes)
	require.EqualValues(t, 500, *snap.RateInKiloBytes)
	require.True(t, snap.Processing)
	require.True(t, snap.Paused)
	require.EqualValues(t, 4096, snap.InstantRateInBytes)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"state": "processing",
		"processing": true,
		"cancelRequested": false,
		"paused": true,
		"rateInKiloBytes": 500,
		"instantRateInBytes": 4096
	}`, string(data))
}

func TestRequestState_String(t *testing.T) {
	require.Equal(t, "cancelRequested", RequestStateCancelRequested.String())
	require.Equal(t, "unknown(42)", RequestState(42).String())
}

func TestRequestState_UnmarshalText(t *testing.T) {
	var s RequestState
	require.NoError(t, s.UnmarshalText([]byte("reset")))
	require.Equal(t, RequestStateReset, s)
	require.EqualError(t, s.UnmarshalText([]byte("paused")), `unknown request state "paused"`)
}
