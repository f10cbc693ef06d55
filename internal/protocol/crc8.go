package protocol

// crc8Poly is the generator polynomial, x^8 + x^2 + x + 1.
const crc8Poly = 0x07

// Checksum computes an 8-bit CRC over data: polynomial 0x07, initial
// value 0x00, each byte processed MSB-first. The cloud-side parser uses
// the same parameters; the check value for "123456789" is 0xF4.
func Checksum(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crc8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
