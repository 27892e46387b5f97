package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddDeviceRefreshesExistingDeviceInPlace(t *testing.T) {
	p := &UserPreferences{Devices: []Device{{DeviceID: "d1", Token: "old", LastSeen: time.Unix(100, 0)}}}
	p.AddDevice(Device{DeviceID: "d1", Token: "new", LastSeen: time.Unix(200, 0)})

	require.Len(t, p.Devices, 1)
	require.Equal(t, "new", p.Devices[0].Token)
}

func TestAddDeviceEvictsOldestOnOverflow(t *testing.T) {
	p := &UserPreferences{}
	for i := 0; i < MaxDevices; i++ {
		p.AddDevice(Device{DeviceID: string(rune('a' + i)), LastSeen: time.Unix(int64(i), 0)})
	}
	require.Len(t, p.Devices, MaxDevices)

	p.AddDevice(Device{DeviceID: "newest", LastSeen: time.Unix(int64(MaxDevices), 0)})

	require.Len(t, p.Devices, MaxDevices)
	for _, d := range p.Devices {
		require.NotEqual(t, "a", d.DeviceID, "expected the oldest-by-LastSeen device to be evicted")
	}
}
