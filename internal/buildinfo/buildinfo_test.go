/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package buildinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name      string
		buildInfo *buildinfo.BuildInfo
		want      Info
	}{
		{
			name: "released binary",
			buildInfo: &buildinfo.BuildInfo{
				GoVersion: "go1.22.5",
				Main:      debug.Module{Path: "github.com/LimJW/go-large-file-uploader", Version: "v0.3.1"},
				Deps:      []*debug.Module{{Path: appKitModule, Version: "v1.17.0"}},
			},
			want: Info{Version: "v0.3.1", AppKitVersion: "v1.17.0", GoVersion: "go1.22.5"},
		},
		{
			name: "development build, major version suffix",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Deps: []*debug.Module{{Path: appKitModule + "/v2", Version: "v2.0.0"}},
			},
			want: Info{Version: unknownVersion, AppKitVersion: "v2.0.0"},
		},
		{
			name: "dependency not found",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: "github.com/other/module", Version: "v1.0.0"}},
			},
			want: Info{Version: unknownVersion, AppKitVersion: unknownVersion},
		},
		{
			name: "nil build info",
			want: Info{Version: unknownVersion, AppKitVersion: unknownVersion},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, fromBuildInfo(tt.buildInfo))
		})
	}
}

func TestNewPrometheusGauge(t *testing.T) {
	g := NewPrometheusGauge("test")
	require.Equal(t, 1.0, testutil.ToFloat64(g))
}
