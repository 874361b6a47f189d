package alsa

import (
	"testing"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

const sampleAplayL = `default
    Default ALSA Output (currently PulseAudio Sound Server)
sysdefault:CARD=PCH
    HDA Intel PCH, ALC892 Analog
hw:CARD=Dash,DEV=0
    Car dashboard amplifier
bluealsa:DEV=AA:BB:CC:DD:EE:FF
    JBL Flip (Bluetooth)
plughw:CARD=PCH,DEV=0
    Hardware device with all software conversions
`

func TestParseDeviceList(t *testing.T) {
	devices := parseDeviceList(sampleAplayL)
	if len(devices) != 5 {
		t.Fatalf("parsed %d devices, want 5", len(devices))
	}

	byID := map[string]audio.DeviceInfo{}
	for _, d := range devices {
		byID[d.ID] = d
	}

	tests := []struct {
		id   string
		want audio.DeviceClass
	}{
		{"default", audio.DeviceDefault},
		{"sysdefault:CARD=PCH", audio.DeviceDefault},
		{"hw:CARD=Dash,DEV=0", audio.DeviceCarSpeaker},
		{"bluealsa:DEV=AA:BB:CC:DD:EE:FF", audio.DeviceBluetooth},
		{"plughw:CARD=PCH,DEV=0", audio.DeviceOther},
	}
	for _, tc := range tests {
		d, ok := byID[tc.id]
		if !ok {
			t.Errorf("device %q not parsed", tc.id)
			continue
		}
		if d.Class != tc.want {
			t.Errorf("device %q class = %v, want %v", tc.id, d.Class, tc.want)
		}
		if !d.Active {
			t.Errorf("device %q not marked active", tc.id)
		}
	}

	if d := byID["default"]; d.Name != "Default ALSA Output (currently PulseAudio Sound Server)" {
		t.Errorf("description = %q", d.Name)
	}
}

func TestParseDeviceList_Empty(t *testing.T) {
	if devices := parseDeviceList(""); len(devices) != 0 {
		t.Errorf("parsed %d devices from empty output", len(devices))
	}
}

func TestNew_Options(t *testing.T) {
	b := New(WithMixerControl("Speaker"), WithCard("hw:0"))
	if b.control != "Speaker" {
		t.Errorf("control = %q", b.control)
	}
	if b.card != "hw:0" {
		t.Errorf("card = %q", b.card)
	}
}
