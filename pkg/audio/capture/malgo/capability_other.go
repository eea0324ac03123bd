//go:build !windows && !darwin

package malgo

import (
	"runtime"

	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

func platformCapability() capture.Capability {
	return capture.Capability{
		Platform:         runtime.GOOS,
		NativeLoopback:   false,
		RecommendedSetup: "Select a PulseAudio/PipeWire monitor source (\"Monitor of ...\") as the capture device to record system output.",
		Limitations:      "Render devices cannot be captured directly; loopback relies on the sound server exposing monitor sources.",
	}
}
