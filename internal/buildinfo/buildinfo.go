/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo exposes versions of the running binary and of its key dependencies.
package buildinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const appKitModule = "github.com/acronis/go-appkit"

const unknownVersion = "v0.0.0"

// Prometheus labels of the build info gauge.
const (
	PrometheusVersionLabel       = "version"
	PrometheusAppKitVersionLabel = "go_appkit_version"
)

// Info describes the running binary.
type Info struct {
	Version       string
	AppKitVersion string
	GoVersion     string
}

var (
	info     Info
	infoOnce sync.Once
)

// Get returns information about the running binary. Unknown versions are reported as "v0.0.0".
func Get() Info {
	infoOnce.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		info = fromBuildInfo(bi)
	})
	return info
}

// NewPrometheusGauge creates a gauge that is always 1 and carries versions as labels.
func NewPrometheusGauge(namespace string) prometheus.Gauge {
	i := Get()
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the running binary.",
		ConstLabels: prometheus.Labels{
			PrometheusVersionLabel:       i.Version,
			PrometheusAppKitVersionLabel: i.AppKitVersion,
		},
	})
	g.Set(1)
	return g
}

func fromBuildInfo(bi *buildinfo.BuildInfo) Info {
	res := Info{Version: unknownVersion, AppKitVersion: unknownVersion}
	if bi == nil {
		return res
	}
	res.GoVersion = bi.GoVersion
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		res.Version = bi.Main.Version
	}
	if v := extractModuleVersion(bi, appKitModule); v != "" {
		res.AppKitVersion = v
	}
	return res
}

// extractModuleVersion looks for "modName" or "modName/vX" among dependencies.
func extractModuleVersion(bi *buildinfo.BuildInfo, modName string) string {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	for _, dep := range bi.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
