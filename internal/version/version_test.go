package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		version, target string
		gte, gt         bool
	}{
		{"0.2.0", "0.2.0", true, false},
		{"0.2.1", "0.2.0", true, true},
		{"v0.10.0", "0.9.0", true, true},
		{"0.1.0", "0.2.0", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.version+"_"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.gte, IsVersionGreaterOrEqualThan(tt.version, tt.target))
			assert.Equal(t, tt.gt, IsVersionGreaterThan(tt.version, tt.target))
		})
	}
}

func TestString(t *testing.T) {
	old := GitCommit
	t.Cleanup(func() { GitCommit = old })

	GitCommit = "unknown"
	assert.Equal(t, Version, String())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, Version+"-01234567", String())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(SchemaVersion))
	assert.False(t, IsValid("latest"))
}
