package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"e": Error, "WARN": Warn, "info": Info, "D": Debug, "trace": Trace, "7": Level(7),
	} {
		got, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("12")
	assert.Error(t, err)
}

func TestTagDirective(t *testing.T) {
	var out bytes.Buffer
	root := &Logger{level: int32(Info), out: &output{w: &out}}

	require.NoError(t, Configure("loggertest=debug"))
	log := root.WithTag("loggertest")
	assert.Equal(t, Debug, log.Level())

	log.Debug("hello %d", 42)
	log.Trace(8, "too verbose")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "D/loggertest[logger_test.go:")
	assert.True(t, strings.HasSuffix(lines[0], "hello 42"))
}

func TestConfigureRejectsBadDirective(t *testing.T) {
	err := Configure("flow=chatty")
	assert.Error(t, err)
}
