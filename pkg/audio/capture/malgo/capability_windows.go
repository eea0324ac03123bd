//go:build windows

package malgo

import "github.com/earshot-dev/earshot/pkg/audio/capture"

func platformCapability() capture.Capability {
	return capture.Capability{
		Platform:         "windows",
		NativeLoopback:   true,
		RecommendedSetup: "No setup needed. Any render device can be captured directly via WASAPI loopback.",
	}
}
