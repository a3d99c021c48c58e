/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"log"
	"time"
)

func Example() {
	type Upload struct {
		FileName string
	}

	// Make, configure and register Prometheus metrics collector.
	metricsCollector := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "myservice"})
	metricsCollector.MustRegister()
	defer metricsCollector.Unregister()

	// Make LRU cache for storing maximum 1000 entries.
	// Entries that are not accessed for 2 minutes are treated as expired.
	cache, err := NewWithOpts[string, Upload](1000, metricsCollector, Options[string, Upload]{
		DefaultTTL:        2 * time.Minute,
		ExpireAfterAccess: true,
		OnRemoval: func(key string, value Upload, cause RemovalCause) {
			fmt.Printf("%s (%s) removed: %s\n", key, value.FileName, cause)
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	cache.Add("upload:1", Upload{"movie.mkv"})
	cache.Add("upload:2", Upload{"photo.jpg"})

	if val, found := cache.Get("upload:1"); found {
		fmt.Println(val.FileName)
	}
	cache.Remove("upload:2")

	// Output:
	// movie.mkv
	// upload:2 (photo.jpg) removed: explicit
}
