package protocol

import "testing"

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"single zero", []byte{0x00}, 0x00},
		{"single one", []byte{0x01}, 0x07},
		{"check string", []byte("123456789"), 0xF4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(%v) = 0x%02X, want 0x%02X", tt.data, got, tt.want)
			}
		})
	}
}

func TestChecksumDetectsSingleByteCorruption(t *testing.T) {
	data := []byte{0x01, 0x0B, 0xDE, 0xAD, 0xBE, 0xEF}
	want := Checksum(data)

	for i := range data {
		corrupted := append([]byte(nil), data...)
		corrupted[i] ^= 0xFF
		if Checksum(corrupted) == want {
			t.Errorf("corruption at byte %d not reflected in checksum", i)
		}
	}
}
