package httpc

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, DefaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.NotNil(t, tr.DialContext)
}

func TestNewProxiedClient(t *testing.T) {
	t.Run("empty address is direct", func(t *testing.T) {
		c, err := NewProxiedClient(time.Second, "")
		require.NoError(t, err)
		assert.Equal(t, time.Second, c.Timeout)
	})

	t.Run("socks address builds a dialer", func(t *testing.T) {
		c, err := NewProxiedClient(0, "127.0.0.1:1080")
		require.NoError(t, err)
		tr := c.Transport.(*http.Transport)
		assert.NotNil(t, tr.DialContext)
		assert.Zero(t, c.Timeout)
	})
}
