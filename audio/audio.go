package audio

import (
	"errors"
	"strings"
)

const (
	// TargetRate is the rate the transcription proxy expects.
	TargetRate = 16000
	// DefaultNativeRate is what we ask the platform for; the device may pick another.
	DefaultNativeRate = 48000
	// BlockSize is the number of native-rate samples per processing callback.
	BlockSize = 4096
)

var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrUnsupported      = errors.New("audio capture unsupported")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives mono float samples in [-1, 1] at the device's native rate.
type DataCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	// SampleRate reports the rate the device actually runs at, which may differ
	// from the requested one. Only meaningful after Start.
	SampleRate() int
	DeviceName() string
}
