package capture

import "github.com/earshot-dev/earshot/pkg/audio"

// SelectBestDevice picks the most suitable capture target from an enumerated
// device list, preferring to capture what is being played over what is being
// said. The priority order is deterministic:
//
//  1. the default render device (native loopback platforms list render
//     devices, so their presence implies loopback works),
//  2. any render device,
//  3. a capture device whose loopback method is stereo-mix,
//  4. any remaining device,
//  5. nil when the list is empty.
func SelectBestDevice(devices []audio.Device) *audio.Device {
	for i := range devices {
		if devices[i].IsDefault && devices[i].DeviceType == audio.DeviceRender {
			return &devices[i]
		}
	}
	for i := range devices {
		if devices[i].DeviceType == audio.DeviceRender {
			return &devices[i]
		}
	}
	for i := range devices {
		if devices[i].LoopbackMethod == audio.MethodStereoMix {
			return &devices[i]
		}
	}
	if len(devices) > 0 {
		return &devices[0]
	}
	return nil
}

// AutoSelectBestDevice enumerates the backend's devices and applies
// [SelectBestDevice]. Returns (nil, nil) when no device is available.
func AutoSelectBestDevice(b Backend) (*audio.Device, error) {
	devices, err := b.EnumerateDevices()
	if err != nil {
		return nil, err
	}
	return SelectBestDevice(devices), nil
}
