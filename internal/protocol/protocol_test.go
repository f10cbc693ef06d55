package protocol

import (
	"math"
	"strings"
	"testing"

	"github.com/sweeney/co-monitor/internal/safety"
)

func TestTelemetryRoundTrip(t *testing.T) {
	in := safety.Sample{
		Timestamp: 1000,
		CoPPM:     45.67,
		State:     safety.StateInit,
	}

	pkt := EncodeTelemetry(in)
	if len(pkt) != 17 {
		t.Fatalf("packet length = %d, want 17", len(pkt))
	}
	if pkt[0] != StartMarker || pkt[len(pkt)-1] != EndMarker {
		t.Fatalf("bad markers: % X", pkt)
	}
	if pkt[1] != TypeTelemetry || pkt[2] != 11 {
		t.Fatalf("bad header: type=0x%02X len=%d", pkt[1], pkt[2])
	}
	if !Verify(pkt) {
		t.Fatal("Verify rejected a freshly encoded packet")
	}

	out, err := DecodeTelemetry(pkt)
	if err != nil {
		t.Fatalf("DecodeTelemetry: %v", err)
	}
	if out.Timestamp != 1000 {
		t.Errorf("timestamp = %d, want 1000", out.Timestamp)
	}
	// The fixed-point conversion truncates, so allow one hundredth.
	if math.Abs(out.CoPPM-45.67) > 0.01 {
		t.Errorf("co ppm = %v, want 45.67 within 0.01", out.CoPPM)
	}
	if out.AlarmActive || out.DoorOpen {
		t.Errorf("flags decoded wrong: alarm=%v door=%v", out.AlarmActive, out.DoorOpen)
	}
	if out.State != safety.StateInit {
		t.Errorf("state = %d, want 0", out.State)
	}
}

func TestVerifyRejectsAnyFlippedByte(t *testing.T) {
	pkt := EncodeTelemetry(safety.Sample{Timestamp: 1000, CoPPM: 45.67})

	for i := range pkt {
		corrupted := append([]byte(nil), pkt...)
		corrupted[i] ^= 0xFF
		if Verify(corrupted) {
			t.Errorf("Verify accepted packet with byte %d flipped", i)
		}
	}
}

func TestVerifyRejectsShortAndUnframedInput(t *testing.T) {
	cases := []struct {
		name string
		pkt  []byte
	}{
		{"nil", nil},
		{"five bytes", []byte{StartMarker, TypeStatus, 0, 0, EndMarker}},
		{"bad start", []byte{0x00, TypeStatus, 0x00, 0x00, 0x00, EndMarker}},
		{"bad end", []byte{StartMarker, TypeStatus, 0x00, 0x00, 0x00, 0x00}},
	}
	for _, tc := range cases {
		if Verify(tc.pkt) {
			t.Errorf("%s: Verify accepted invalid input", tc.name)
		}
	}
}

func TestFixedPointTruncatesTowardZero(t *testing.T) {
	pkt := EncodeTelemetry(safety.Sample{CoPPM: 10.999})
	out, err := DecodeTelemetry(pkt)
	if err != nil {
		t.Fatalf("DecodeTelemetry: %v", err)
	}
	if out.CoPPM != 10.99 {
		t.Errorf("co ppm = %v, want 10.99 (truncated)", out.CoPPM)
	}
}

func TestTelemetryFlagBits(t *testing.T) {
	pkt := EncodeTelemetry(safety.Sample{AlarmActive: true, DoorOpen: true, State: safety.StateEmergency})

	// flags byte sits at payload offset 6
	if flags := pkt[3+6]; flags != flagAlarm|flagDoor {
		t.Errorf("flags byte = 0x%02X, want 0x%02X", flags, flagAlarm|flagDoor)
	}

	out, err := DecodeTelemetry(pkt)
	if err != nil {
		t.Fatalf("DecodeTelemetry: %v", err)
	}
	if !out.AlarmActive || !out.DoorOpen {
		t.Errorf("flags lost in round trip: %+v", out)
	}
}

func TestEventRoundTrip(t *testing.T) {
	in := safety.Sample{
		Timestamp:   123456,
		CoPPM:       55.5,
		AlarmActive: true,
		DoorOpen:    true,
		State:       safety.StateEmergency,
		Label:       safety.LabelEmergency,
	}

	pkt := EncodeEvent(in)
	if !Verify(pkt) {
		t.Fatal("Verify rejected a freshly encoded event packet")
	}
	if pkt[1] != TypeEvent {
		t.Fatalf("type = 0x%02X, want 0x%02X", pkt[1], TypeEvent)
	}
	if want := 11 + len(in.Label); int(pkt[2]) != want {
		t.Fatalf("length byte = %d, want %d", pkt[2], want)
	}

	out, err := DecodeEvent(pkt)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if out.Label != safety.LabelEmergency {
		t.Errorf("label = %q, want %q", out.Label, safety.LabelEmergency)
	}
	if out.Timestamp != in.Timestamp || out.State != in.State {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.CoPPM != 55.5 {
		t.Errorf("co ppm = %v, want 55.5", out.CoPPM)
	}
	if !out.AlarmActive || !out.DoorOpen {
		t.Errorf("flags lost: %+v", out)
	}
}

func TestEventLabelTruncatedToMax(t *testing.T) {
	long := strings.Repeat("A", MaxEventName+4)
	pkt := EncodeEvent(safety.Sample{Label: long})

	out, err := DecodeEvent(pkt)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if out.Label != long[:MaxEventName] {
		t.Errorf("label = %q, want %d-byte prefix", out.Label, MaxEventName)
	}
}

func TestDecodeEventRejectsInconsistentNameLength(t *testing.T) {
	pkt := EncodeEvent(safety.Sample{Label: safety.LabelOpen})
	// Corrupt the name-length byte but keep the frame valid by
	// re-framing the mutated payload.
	payload := append([]byte(nil), pkt[3:len(pkt)-2]...)
	payload[6] = byte(len(safety.LabelOpen) + 1)
	if _, err := DecodeEvent(frame(TypeEvent, payload)); err == nil {
		t.Error("expected error for inconsistent name length")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	pkt := EncodeStatus(true, safety.StateEmergency)
	if len(pkt) != 10 {
		t.Fatalf("status packet length = %d, want 10", len(pkt))
	}
	armed, state, err := DecodeStatus(pkt)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if !armed || state != safety.StateEmergency {
		t.Errorf("decoded armed=%v state=%s, want armed EMERGENCY", armed, state)
	}
}

func TestOfflineStatusPacket(t *testing.T) {
	pkt := EncodeStatus(false, safety.StateInit)
	armed, state, err := DecodeStatus(pkt)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if armed || state != safety.StateInit {
		t.Errorf("offline status decoded armed=%v state=%s, want disarmed INIT", armed, state)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	tests := []struct {
		cmd  Command
		name string
	}{
		{CmdStartEmergency, "START_EMERGENCY"},
		{CmdStopEmergency, "STOP_EMERGENCY"},
		{CmdTest, "TEST"},
		{CmdOpenDoor, "OPEN_DOOR"},
	}

	for _, tt := range tests {
		pkt := EncodeCommand(tt.cmd)
		got, err := DecodeCommand(pkt)
		if err != nil {
			t.Fatalf("DecodeCommand(%s): %v", tt.name, err)
		}
		if got != tt.cmd {
			t.Errorf("decoded 0x%02X, want 0x%02X", byte(got), byte(tt.cmd))
		}
		if got.String() != tt.name {
			t.Errorf("String() = %q, want %q", got.String(), tt.name)
		}
	}
}

func TestDecodeCommandOpenDoorByte(t *testing.T) {
	pkt := frame(TypeCommand, []byte{0x04})
	cmd, err := DecodeCommand(pkt)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if cmd != CmdOpenDoor {
		t.Errorf("0x04 decoded to %s, want OPEN_DOOR", cmd)
	}
}

func TestDecodeCommandRejectsUnknownID(t *testing.T) {
	pkt := frame(TypeCommand, []byte{0xFF})
	if _, err := DecodeCommand(pkt); err == nil {
		t.Error("expected error for unknown command id 0xFF")
	}
}

func TestDecodeCommandRejectsWrongType(t *testing.T) {
	pkt := EncodeTelemetry(safety.Sample{})
	if _, err := DecodeCommand(pkt); err == nil {
		t.Error("expected error decoding a telemetry packet as a command")
	}
}

func TestDecodeCommandRejectsCorruptFrame(t *testing.T) {
	pkt := EncodeCommand(CmdTest)
	pkt[4] ^= 0xFF
	if _, err := DecodeCommand(pkt); err == nil {
		t.Error("expected error for corrupted command frame")
	}
}

func TestUnwrapChecksLengthByte(t *testing.T) {
	pkt := EncodeStatus(true, safety.StateNormal)
	// Shrink the declared payload length and re-checksum so only the
	// length consistency check can fail.
	pkt[2]--
	pkt[len(pkt)-2] = Checksum(pkt[1 : len(pkt)-2])
	if _, _, err := DecodeStatus(pkt); err == nil {
		t.Error("expected error for length byte mismatch")
	}
}
