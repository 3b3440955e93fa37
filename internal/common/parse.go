package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex converts a uint64 string into the number. Values with a
// 0x prefix are parsed as hexadecimal.
func ParseUint64orHex(val string) (uint64, error) {
	base := 10
	if strings.HasPrefix(val, "0x") {
		val = val[2:]
		base = 16
	}
	return strconv.ParseUint(val, base, 64)
}
