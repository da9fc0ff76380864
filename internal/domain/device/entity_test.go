package device

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func active(t DeviceType, battery int) *Device {
	return &Device{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		Type:         t,
		BatteryLevel: battery,
		TierLevel:    1,
		Active:       true,
	}
}

func TestCanSend(t *testing.T) {
	tests := []struct {
		name   string
		device *Device
		want   bool
	}{
		{"nil device", nil, false},
		{"short range healthy", active(TypeShortRange, 80), true},
		{"mid range healthy", active(TypeMidRange, 1), true},
		{"long range healthy", active(TypeLongRange, 100), true},
		{"receive only", active(TypeReceiveOnly, 100), false},
		{"depleted battery", active(TypeShortRange, 0), false},
		{"unknown tier", active(DeviceType("quantum"), 100), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.device.CanSend(); got != tc.want {
				t.Errorf("CanSend() = %v, want %v", got, tc.want)
			}
		})
	}
}

// canSend implies active, charged and a sending-capable tier.
func TestCanSendImpliesEligibility(t *testing.T) {
	devices := []*Device{
		active(TypeShortRange, 50),
		active(TypeReceiveOnly, 50),
		{Type: TypeMidRange, BatteryLevel: 50, Active: false},
		{Type: TypeLongRange, BatteryLevel: 0, Active: true},
	}
	for _, d := range devices {
		if d.CanSend() && !(d.Active && d.BatteryLevel > 0 && d.Type.CapableOfSending()) {
			t.Errorf("CanSend() true for ineligible device %+v", d)
		}
	}
}

func TestCanReceive(t *testing.T) {
	d := active(TypeReceiveOnly, 10)
	if !d.CanReceive() {
		t.Error("active receive-only device with battery should receive")
	}
	d.Active = false
	if d.CanReceive() {
		t.Error("inactive device should not receive")
	}
	d.Active = true
	d.BatteryLevel = 0
	if d.CanReceive() {
		t.Error("depleted device should not receive")
	}
	var none *Device
	if none.CanReceive() {
		t.Error("nil device should not receive")
	}
}

func TestEffectiveRangeKm(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Device)
		dtype  DeviceType
		want   float64
	}{
		{"short range default", func(d *Device) { d.RangeKm = 0 }, TypeShortRange, 5},
		{"short range stored below default", func(d *Device) { d.RangeKm = 3 }, TypeShortRange, 5},
		{"short range stored above default", func(d *Device) { d.RangeKm = 8 }, TypeShortRange, 8},
		{"mid range default", func(d *Device) { d.RangeKm = 0 }, TypeMidRange, 50},
		{"long range level 1", func(d *Device) { d.TierLevel = 1 }, TypeLongRange, 100},
		{"long range level 3", func(d *Device) { d.TierLevel = 3 }, TypeLongRange, 300},
		{"long range level 0 clamps to 1", func(d *Device) { d.TierLevel = 0 }, TypeLongRange, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := active(tc.dtype, 100)
			tc.mutate(d)
			if got := d.EffectiveRangeKm(); got != tc.want {
				t.Errorf("EffectiveRangeKm() = %v, want %v", got, tc.want)
			}
		})
	}

	if r := active(TypeReceiveOnly, 100).EffectiveRangeKm(); !math.IsInf(r, 1) {
		t.Errorf("receive-only range = %v, want +Inf", r)
	}
}

func TestReasonCannotSend(t *testing.T) {
	tests := []struct {
		name   string
		device *Device
		reason string
		barred bool
	}{
		{"nil device", nil, "no device", true},
		{"inactive", &Device{Type: TypeShortRange, BatteryLevel: 50}, "device inactive", true},
		{"depleted", &Device{Type: TypeShortRange, Active: true}, "battery depleted", true},
		{"receive only", active(TypeReceiveOnly, 50), "device is receive-only", true},
		{"sendable", active(TypeMidRange, 50), "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason, barred := ReasonCannotSend(tc.device)
			if barred != tc.barred || reason != tc.reason {
				t.Errorf("ReasonCannotSend() = (%q, %v), want (%q, %v)", reason, barred, tc.reason, tc.barred)
			}
		})
	}
}

// Ordering matters: an inactive, depleted, receive-only device reports
// inactivity first.
func TestReasonCannotSendOrdering(t *testing.T) {
	d := &Device{Type: TypeReceiveOnly, Active: false, BatteryLevel: 0}
	reason, _ := ReasonCannotSend(d)
	if reason != "device inactive" {
		t.Errorf("reason = %q, want %q", reason, "device inactive")
	}
}
