package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                       string
		version, date, rev         string
		wantVersion, wantDate, out string
	}{
		{"empty", "", "", "", UnknownValue, UnknownValue, "camhal unknown (built unknown, revision unknown"},
		{"release", "v1.0.0", "2026-01-02", "0123456789abcdef", "v1.0.0", "2026-01-02", "camhal v1.0.0 (built 2026-01-02, revision 0123456789ab,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewContext(tt.version, tt.date, tt.rev)
			assert.Equal(t, tt.wantVersion, c.Version)
			assert.Equal(t, tt.wantDate, c.BuildDate)
			assert.Equal(t, runtime.Version(), c.GoVersion)
			assert.Contains(t, c.String(), tt.out)
		})
	}
}

func TestNilContextString(t *testing.T) {
	t.Parallel()

	var c *Context
	assert.Equal(t, UnknownValue, c.String())
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	c := Current()
	assert.NotEmpty(t, c.Version)
	assert.NotEmpty(t, c.Revision)
}
