/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMasterRateConfig(t *testing.T) {
	c := NewDefaultMasterRateConfig()
	require.EqualValues(t, 10240, c.MaximumRatePerClientInKiloBytes())
	require.EqualValues(t, 10240, c.MaximumOverAllRateInKiloBytes())
	require.Zero(t, c.InstantRateInBytes())

	c.SetMaximumRatePerClientInKiloBytes(512)
	c.SetMaximumOverAllRateInKiloBytes(2048)
	c.SetInstantRateInBytes(1 << 20)
	require.EqualValues(t, 512, c.MaximumRatePerClientInKiloBytes())
	require.EqualValues(t, 2048, c.MaximumOverAllRateInKiloBytes())
	require.EqualValues(t, 1<<20, c.InstantRateInBytes())
}

func TestMasterRateConfig_ConcurrentUpdates(t *testing.T) {
	c := NewMasterRateConfig(0, 0)
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			c.SetMaximumRatePerClientInKiloBytes(v)
			_ = c.MaximumRatePerClientInKiloBytes()
		}(int64(i))
	}
	wg.Wait()
	require.Greater(t, c.MaximumRatePerClientInKiloBytes(), int64(0))
}
