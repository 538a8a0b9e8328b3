package hub

import (
	"strconv"
	"strings"
)

// PrivateRoomKey derives the canonical room key for a 1:1 conversation.
// The lower id always comes first, so both participants compute the same
// key no matter who initiates.
func PrivateRoomKey(a, b int) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(a) + "_" + strconv.Itoa(b)
}

// ParsePrivateRoomKey returns the two participant ids encoded in a
// private room key, or ok=false if key is not one.
func ParsePrivateRoomKey(key string) (int, int, bool) {
	left, right, found := strings.Cut(key, "_")
	if !found {
		return 0, 0, false
	}

	a, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(right)
	if err != nil {
		return 0, 0, false
	}
	if a > b {
		return 0, 0, false
	}

	return a, b, true
}
