package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrivateRoomKey(t *testing.T) {
	t.Run("orders participants canonically", func(t *testing.T) {
		assert.Equal(t, "3_7", PrivateRoomKey(7, 3), "expected lower id first")
		assert.Equal(t, "3_7", PrivateRoomKey(3, 7), "expected lower id first")
	})

	t.Run("symmetric for all pairs", func(t *testing.T) {
		for a := 1; a <= 10; a++ {
			for b := 1; b <= 10; b++ {
				assert.Equalf(t, PrivateRoomKey(a, b), PrivateRoomKey(b, a),
					"expected key for (%d, %d) to be order-independent", a, b)
			}
		}
	})

	t.Run("computing twice yields the same key", func(t *testing.T) {
		assert.Equal(t, PrivateRoomKey(12, 99), PrivateRoomKey(12, 99))
	})
}

func TestParsePrivateRoomKey(t *testing.T) {
	tcases := []struct {
		name  string
		key   string
		a, b  int
		valid bool
	}{
		{name: "valid key", key: "3_7", a: 3, b: 7, valid: true},
		{name: "equal ids", key: "5_5", a: 5, b: 5, valid: true},
		{name: "wrong order", key: "7_3", valid: false},
		{name: "no separator", key: "37", valid: false},
		{name: "non-numeric left", key: "x_7", valid: false},
		{name: "non-numeric right", key: "3_y", valid: false},
		{name: "public room id", key: "EoGKUXPHgz", valid: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			a, b, ok := ParsePrivateRoomKey(tc.key)
			assert.Equal(t, tc.valid, ok, "expected validity to match for key %q", tc.key)
			if tc.valid {
				assert.Equal(t, tc.a, a, "expected first participant to match")
				assert.Equal(t, tc.b, b, "expected second participant to match")
			}
		})
	}
}

func TestPrivateRoomKeyRoundTrip(t *testing.T) {
	a, b, ok := ParsePrivateRoomKey(PrivateRoomKey(42, 17))
	assert.True(t, ok, "expected derived key to parse")
	assert.Equal(t, 17, a)
	assert.Equal(t, 42, b)
}
