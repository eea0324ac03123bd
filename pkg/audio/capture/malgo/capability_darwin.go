//go:build darwin

package malgo

import "github.com/earshot-dev/earshot/pkg/audio/capture"

func platformCapability() capture.Capability {
	return capture.Capability{
		Platform:         "darwin",
		NativeLoopback:   false,
		RecommendedSetup: "Install a virtual loopback driver such as BlackHole or Loopback.app, route system output through it, then select it as the capture device.",
		Limitations:      "CoreAudio has no native loopback; render devices cannot be captured directly.",
	}
}
