package modbus

import "encoding/binary"

// BitsByteCount returns the number of bytes needed to pack count bits.
func BitsByteCount(count uint16) int {
	return (int(count) + 7) / 8
}

// PackBits packs a bool slice into the wire bit layout: logical bit k maps
// to bit (k mod 8) of byte k/8. Trailing unused bits of the last byte are
// zero.
func PackBits(values []bool) []byte {
	data := make([]byte, BitsByteCount(uint16(len(values))))
	for k, v := range values {
		if v {
			data[k/8] |= 1 << (k % 8)
		}
	}
	return data
}

// UnpackBits expands count packed bits into a bool slice.
func UnpackBits(data []byte, count uint16) []bool {
	values := make([]bool, count)
	for k := range values {
		values[k] = data[k/8]&(1<<(k%8)) != 0
	}
	return values
}

// RegistersToBytes marshals registers into big-endian wire bytes.
func RegistersToBytes(values []uint16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	return data
}

// BytesToRegisters unmarshals big-endian wire bytes into registers.
// len(data) must be even.
func BytesToRegisters(data []byte) []uint16 {
	values := make([]uint16, len(data)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return values
}
