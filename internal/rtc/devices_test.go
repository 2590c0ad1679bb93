package rtc

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceCatalog(t *testing.T) {
	devices, err := ParseDeviceCatalog("camera:cam0:Front Camera, microphone:mic0 ,speaker:default:Default,")
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, Device{ID: "cam0", Kind: DeviceCamera, Label: "Front Camera"}, devices[0])
	assert.Equal(t, Device{ID: "mic0", Kind: DeviceMicrophone, Label: "mic0"}, devices[1])
	assert.Equal(t, DeviceSpeaker, devices[2].Kind)

	selected := defaultSelection(devices)
	assert.Equal(t, "cam0", selected[DeviceCamera])
	assert.Equal(t, "mic0", selected[DeviceMicrophone])
	assert.Equal(t, "default", selected[DeviceSpeaker])
}

func TestParseDeviceCatalogErrors(t *testing.T) {
	for _, entry := range []string{"camera", "projector:p0", "camera: :x"} {
		_, err := ParseDeviceCatalog(entry)
		assert.Error(t, err, entry)
	}
}

func TestGenerateTone(t *testing.T) {
	pcm := GenerateTone(440, 10*time.Millisecond, 48000)
	require.Len(t, pcm, 480*2)

	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(pcm[0:])))

	var peak int16
	for i := 0; i < len(pcm); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(pcm[i:])); v > peak {
			peak = v
		}
	}
	assert.Greater(t, peak, int16(0))
	assert.LessOrEqual(t, int(peak), 8193)
}

func TestSignalingURL(t *testing.T) {
	got, err := signalingURL("https://calls.example.com/room/1?t=abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://calls.example.com/room/1?t=abc", got)

	got, err = signalingURL("http://localhost:8080/r")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/r", got)

	_, err = signalingURL("ftp://x/1")
	assert.Error(t, err)
	_, err = signalingURL("https:///nohost")
	assert.Error(t, err)
}
