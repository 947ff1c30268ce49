package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://bot:pw@ch.local/convexbot")
	require.NoError(t, err)
	assert.Equal(t, []string{"ch.local:9000"}, opts.Addr)
	assert.Equal(t, "bot", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "convexbot", opts.Auth.Database)

	opts, err = parseDSN("tcp://localhost:19000")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:19000"}, opts.Addr)
	assert.Empty(t, opts.Auth.Database)

	_, err = parseDSN("http://localhost:8123")
	assert.Error(t, err)
}
