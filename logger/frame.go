package logger

import (
	"strconv"
	"strings"
)

// frameDumpLimit caps how many octets Frame renders. Modbus ADUs run up to
// 260 bytes; dumping a whole register block into every Tx/Rx record would
// drown the log, and the header plus the first payload bytes are what a
// protocol trace needs.
const frameDumpLimit = 32

const hexDigits = "0123456789ABCDEF"

// Frame formats a Modbus frame for structured log output: space-separated
// uppercase hex octets, truncated after frameDumpLimit bytes with the total
// length appended. The engines attach it to their Tx/Rx debug records.
//
//	logger.Frame([]byte{0x01, 0x83, 0x02}) == "01 83 02"
func Frame(data []byte) string {
	n := len(data)
	truncated := false
	if n > frameDumpLimit {
		n = frameDumpLimit
		truncated = true
	}

	var sb strings.Builder
	sb.Grow(3*n + 16)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(hexDigits[data[i]>>4])
		sb.WriteByte(hexDigits[data[i]&0x0F])
	}
	if truncated {
		sb.WriteString(" +")
		sb.WriteString(strconv.Itoa(len(data) - n))
		sb.WriteString(" bytes")
	}
	return sb.String()
}
