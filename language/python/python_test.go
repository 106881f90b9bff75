package python

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeEmbedded(t *testing.T) {
	require.NotEmpty(t, bridge)
	for _, want := range []string{
		"CREEK_READY",
		"CREEK_RESULT",
		"CREEK_CALL",
		"creek_host",
		"host_result",
		"str(value)",
	} {
		assert.True(t, strings.Contains(bridge, want), "bridge missing %q", want)
	}
}

func TestArgs(t *testing.T) {
	args := New().Args("print(1)")
	assert.Equal(t, []string{"python3", "-u", "-c", "print(1)"}, args)

	args = New(WithExecutable("/opt/py/bin/python3.12")).Args("x")
	assert.Equal(t, "/opt/py/bin/python3.12", args[0])
}

func TestEmptyExecutableKeepsDefault(t *testing.T) {
	assert.Equal(t, DefaultExecutable, New(WithExecutable("")).Args("")[0])
}

func TestLanguageMetadata(t *testing.T) {
	p := New()
	assert.Equal(t, "python", p.Name())
	assert.Equal(t, "PYTHONPATH", p.SearchPathEnv())
	assert.Equal(t, bridge, p.Bootstrap())
}
