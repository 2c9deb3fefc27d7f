package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		str     string
		want    bool
	}{
		{"foo", "foo", true},
		{"foo", "fo", false},
		{"foo*", "foo", true},
		{"foo*", "foobar", true},
		{"foo*", "what is foo", false},
		{"*wh*is*foo*", "what is foo", true},
		{"*", "", true},
		{"timers/*", "timers/_REALTIME_", true},
		{"*/imu", "robot/arm/imu", true},
		{"im?", "imu", true},
		{"im?", "im", false},
		{"", "", true},
		{"", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.str, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.str))
		})
	}
}

func TestHasWildcards(t *testing.T) {
	assert.True(t, HasWildcards("a*"))
	assert.True(t, HasWildcards("a?"))
	assert.False(t, HasWildcards("robot/imu"))
}

func TestPattern(t *testing.T) {
	p := Of("robot", "*")
	assert.True(t, p.IsWildcard())
	assert.True(t, p.Matches(Key{Group: "robot", Name: "imu"}))
	assert.False(t, p.Matches(Key{Group: "env", Name: "imu"}))
	assert.Equal(t, "robot/*", p.String())

	exact := Of("robot", "imu")
	assert.False(t, exact.IsWildcard())
	assert.Equal(t, Key{Group: "robot", Name: "imu"}, exact.Key())
	assert.Equal(t, "robot/imu", exact.Key().String())
}

func TestPattern_Covers(t *testing.T) {
	assert.True(t, Of("g", "*").Covers(Of("g", "x")))
	assert.True(t, Of("g", "*").Covers(Of("g", "*")), "a wildcard covers its own literal text")
	assert.False(t, Of("g", "x").Covers(Of("g", "*")))
	assert.True(t, Of("g", "x").Covers(Of("g", "x")))
}
