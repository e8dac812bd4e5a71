package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These tests swap package globals and so do not run in parallel.

func TestDebugf_Gated(t *testing.T) {
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() {
		SetDebug(false)
		SetLogger(nil)
	})

	Debugf("hidden %d", 1)
	assert.Empty(t, lines)
	assert.False(t, DebugEnabled())

	SetDebug(true)
	Debugf("shown %d", 2)
	Logf("plain")
	assert.Equal(t, []string{"[debug] shown 2", "plain"}, lines)
}

func TestSetLogger_NilMutes(t *testing.T) {
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("nothing %s", "here") })
}
