package modbus

import (
	"strconv"
	"strings"
)

// UnitMapSize is the size of a unit map in bytes: one bit per unit id.
const UnitMapSize = 32

// UnitMap is a bitset over the 256 unit ids, selecting which units a server
// accepts. A nil *UnitMap means "accept all units".
type UnitMap [UnitMapSize]byte

// Get reports whether the unit id is enabled.
func (m *UnitMap) Get(unit byte) bool {
	return m[unit/8]&(1<<(unit%8)) != 0
}

// Set enables or disables the unit id.
func (m *UnitMap) Set(unit byte, enable bool) {
	if enable {
		m[unit/8] |= 1 << (unit % 8)
	} else {
		m[unit/8] &^= 1 << (unit % 8)
	}
}

// String serializes the map to its compact textual form: a comma separated
// list of unit ranges, each "N" or "N-M".
func (m *UnitMap) String() string {
	var sb strings.Builder
	begin := -1
	for unit := 0; unit <= 256; unit++ {
		enabled := unit < 256 && m.Get(byte(unit))
		switch {
		case enabled && begin < 0:
			begin = unit
		case !enabled && begin >= 0:
			if sb.Len() > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(begin))
			if last := unit - 1; last != begin {
				sb.WriteByte('-')
				sb.WriteString(strconv.Itoa(last))
			}
			begin = -1
		}
	}
	return sb.String()
}

// ParseUnitMap deserializes the textual range form produced by String.
// Whitespace around numbers and separators is tolerated. Malformed input
// returns (nil, false) so callers can keep their previous map.
func ParseUnitMap(s string) (*UnitMap, bool) {
	m := &UnitMap{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, false
		}
		first, last := item, item
		if i := strings.IndexByte(item, '-'); i >= 0 {
			first = strings.TrimSpace(item[:i])
			last = strings.TrimSpace(item[i+1:])
		}
		begin, err := strconv.ParseUint(first, 10, 8)
		if err != nil {
			return nil, false
		}
		end, err := strconv.ParseUint(last, 10, 8)
		if err != nil || end < begin {
			return nil, false
		}
		for unit := begin; unit <= end; unit++ {
			m.Set(byte(unit), true)
		}
	}
	return m, true
}
