package redis

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "price:abc", (&Client{}).Key("price", "abc"))
	assert.Equal(t, "convexbot:lock:instance", (&Client{prefix: "convexbot"}).Key("lock", "instance"))
}

func TestParsePrice(t *testing.T) {
	price, ts, err := parsePrice(map[string]string{"price": "0.0025", "ts": "1700000000000000000"})
	assert.NoError(t, err)
	assert.Equal(t, 0.0025, price)
	assert.Equal(t, int64(1_700_000_000), ts.Unix())

	_, _, err = parsePrice(map[string]string{})
	assert.Error(t, err)

	_, _, err = parsePrice(map[string]string{"price": "x", "ts": "1"})
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 8}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Nil(t, opts.TLSConfig)

	opts = ClientConfig{Addr: "cache:6380", TLSEnabled: true}.options()
	if assert.NotNil(t, opts.TLSConfig) {
		assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
	}
}
