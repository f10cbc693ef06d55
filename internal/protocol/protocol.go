// Package protocol implements the framed binary wire format shared with
// the cloud dashboard. Every packet is
//
//	[0xAA][TYPE][LEN][PAYLOAD...][CRC8][0x55]
//
// with the checksum covering TYPE through the end of the payload. Multi
// byte integers are big-endian. CO readings travel as u16 fixed-point
// (hundredths of a ppm, truncated toward zero), so round-trips lose up
// to 0.01 ppm.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sweeney/co-monitor/internal/safety"
)

// Framing markers.
const (
	StartMarker = 0xAA
	EndMarker   = 0x55
)

// Message types.
const (
	TypeTelemetry = 0x01
	TypeEvent     = 0x02
	TypeStatus    = 0x03
	TypeCommand   = 0x10
)

// MaxEventName is the longest label an event packet can carry; longer
// labels are truncated on encode.
const MaxEventName = 16

// minPacketLen is START + TYPE + LEN + CRC + END around an empty payload.
const minPacketLen = 6

// telemetryPayloadLen: timestamp(4) + ppm(2) + flags(1) + state(1) + reserved(3).
const telemetryPayloadLen = 11

// statusPayloadLen: armed(1) + state(1) + reserved(2).
const statusPayloadLen = 4

// Flag bits shared by telemetry and event payloads.
const (
	flagAlarm = 1 << 1
	flagDoor  = 1 << 2
)

// ErrBadFrame marks packets that fail length, marker or checksum checks.
var ErrBadFrame = errors.New("bad frame")

// Command is a remote command id carried in a command packet.
type Command byte

const (
	CmdStartEmergency Command = 0x01
	CmdStopEmergency  Command = 0x02
	CmdTest           Command = 0x03
	CmdOpenDoor       Command = 0x04
)

// String returns the command name used in logs.
func (c Command) String() string {
	switch c {
	case CmdStartEmergency:
		return "START_EMERGENCY"
	case CmdStopEmergency:
		return "STOP_EMERGENCY"
	case CmdTest:
		return "TEST"
	case CmdOpenDoor:
		return "OPEN_DOOR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// EncodeTelemetry builds a telemetry packet (type 0x01) for s.
func EncodeTelemetry(s safety.Sample) []byte {
	payload := make([]byte, telemetryPayloadLen)
	binary.BigEndian.PutUint32(payload[0:4], s.Timestamp)
	binary.BigEndian.PutUint16(payload[4:6], fixedPPM(s.CoPPM))
	payload[6] = flagBits(s)
	payload[7] = byte(s.State)
	// payload[8:11] reserved
	return frame(TypeTelemetry, payload)
}

// EncodeEvent builds an event packet (type 0x02) carrying the sample's
// label.
func EncodeEvent(s safety.Sample) []byte {
	label := s.Label
	if len(label) > MaxEventName {
		label = label[:MaxEventName]
	}
	payload := make([]byte, telemetryPayloadLen+len(label))
	binary.BigEndian.PutUint32(payload[0:4], s.Timestamp)
	binary.BigEndian.PutUint16(payload[4:6], fixedPPM(s.CoPPM))
	payload[6] = byte(len(label))
	copy(payload[7:], label)
	payload[7+len(label)] = flagBits(s)
	payload[8+len(label)] = byte(s.State)
	// final 2 bytes reserved
	return frame(TypeEvent, payload)
}

// EncodeStatus builds a status packet (type 0x03). The broker retains
// the latest one; the pre-encoded last-will uses armed=false, StateInit.
func EncodeStatus(armed bool, state safety.State) []byte {
	payload := make([]byte, statusPayloadLen)
	if armed {
		payload[0] = 1
	}
	payload[1] = byte(state)
	return frame(TypeStatus, payload)
}

// EncodeCommand builds a command packet (type 0x10). The firmware only
// decodes commands; encoding exists for the dashboard collaborator and
// for tests.
func EncodeCommand(cmd Command) []byte {
	return frame(TypeCommand, []byte{byte(cmd)})
}

// Verify reports whether pkt is well-formed: minimum length, both
// markers in place, checksum matching. It does not interpret the payload.
func Verify(pkt []byte) bool {
	if len(pkt) < minPacketLen {
		return false
	}
	if pkt[0] != StartMarker || pkt[len(pkt)-1] != EndMarker {
		return false
	}
	return pkt[len(pkt)-2] == Checksum(pkt[1:len(pkt)-2])
}

// DecodeTelemetry parses a telemetry packet back into a sample. The ppm
// value carries the fixed-point precision of the wire format.
func DecodeTelemetry(pkt []byte) (safety.Sample, error) {
	payload, err := unwrap(pkt, TypeTelemetry)
	if err != nil {
		return safety.Sample{}, err
	}
	if len(payload) != telemetryPayloadLen {
		return safety.Sample{}, fmt.Errorf("telemetry payload length %d, want %d", len(payload), telemetryPayloadLen)
	}
	return safety.Sample{
		Timestamp:   binary.BigEndian.Uint32(payload[0:4]),
		CoPPM:       float64(binary.BigEndian.Uint16(payload[4:6])) / 100,
		AlarmActive: payload[6]&flagAlarm != 0,
		DoorOpen:    payload[6]&flagDoor != 0,
		State:       safety.State(payload[7]),
	}, nil
}

// DecodeEvent parses an event packet, label included.
func DecodeEvent(pkt []byte) (safety.Sample, error) {
	payload, err := unwrap(pkt, TypeEvent)
	if err != nil {
		return safety.Sample{}, err
	}
	if len(payload) < telemetryPayloadLen {
		return safety.Sample{}, fmt.Errorf("event payload too short: %d", len(payload))
	}
	nameLen := int(payload[6])
	if nameLen > MaxEventName || len(payload) != telemetryPayloadLen+nameLen {
		return safety.Sample{}, fmt.Errorf("event name length %d inconsistent with payload length %d", nameLen, len(payload))
	}
	flags := payload[7+nameLen]
	return safety.Sample{
		Timestamp:   binary.BigEndian.Uint32(payload[0:4]),
		CoPPM:       float64(binary.BigEndian.Uint16(payload[4:6])) / 100,
		AlarmActive: flags&flagAlarm != 0,
		DoorOpen:    flags&flagDoor != 0,
		State:       safety.State(payload[8+nameLen]),
		Label:       string(payload[7 : 7+nameLen]),
	}, nil
}

// DecodeStatus parses a status packet.
func DecodeStatus(pkt []byte) (armed bool, state safety.State, err error) {
	payload, err := unwrap(pkt, TypeStatus)
	if err != nil {
		return false, 0, err
	}
	if len(payload) != statusPayloadLen {
		return false, 0, fmt.Errorf("status payload length %d, want %d", len(payload), statusPayloadLen)
	}
	return payload[0] != 0, safety.State(payload[1]), nil
}

// DecodeCommand verifies pkt and extracts its command id. Unknown ids
// fail decode; callers log and discard, never retry.
func DecodeCommand(pkt []byte) (Command, error) {
	payload, err := unwrap(pkt, TypeCommand)
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("command payload length %d, want 1", len(payload))
	}
	cmd := Command(payload[0])
	switch cmd {
	case CmdStartEmergency, CmdStopEmergency, CmdTest, CmdOpenDoor:
		return cmd, nil
	}
	return 0, fmt.Errorf("unknown command id 0x%02X", payload[0])
}

// frame wraps payload in markers, length byte and checksum.
func frame(msgType byte, payload []byte) []byte {
	pkt := make([]byte, 0, len(payload)+minPacketLen-1)
	pkt = append(pkt, StartMarker, msgType, byte(len(payload)))
	pkt = append(pkt, payload...)
	pkt = append(pkt, Checksum(pkt[1:]))
	pkt = append(pkt, EndMarker)
	return pkt
}

// unwrap verifies framing and returns the payload of a packet of the
// given type.
func unwrap(pkt []byte, msgType byte) ([]byte, error) {
	if !Verify(pkt) {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBadFrame, len(pkt))
	}
	if pkt[1] != msgType {
		return nil, fmt.Errorf("message type 0x%02X, want 0x%02X", pkt[1], msgType)
	}
	if int(pkt[2]) != len(pkt)-5 {
		return nil, fmt.Errorf("length byte %d does not match payload length %d", pkt[2], len(pkt)-5)
	}
	return pkt[3 : len(pkt)-2], nil
}

// fixedPPM converts a reading to the u16 wire value, hundredths of a ppm
// truncated toward zero.
func fixedPPM(ppm float64) uint16 {
	return uint16(ppm * 100)
}

func flagBits(s safety.Sample) byte {
	var flags byte
	if s.AlarmActive {
		flags |= flagAlarm
	}
	if s.DoorOpen {
		flags |= flagDoor
	}
	return flags
}
