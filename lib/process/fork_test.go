package process

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFork_EchoesThroughPipes(t *testing.T) {
	p, err := Fork("cat")
	require.NoError(t, err)

	go func() {
		_, _ = p.Stdin().Write([]byte("ping"))
		_ = p.Stdin().Close()
	}()

	out := make([]byte, 4)
	_, err = io.ReadFull(p.Stdout(), out)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(out))

	require.NoError(t, p.Wait())
	require.NoError(t, p.Wait())
	assert.NoError(t, p.Close())
}

func TestFork_MissingBinary(t *testing.T) {
	_, err := Fork("/nonexistent/essentialskript")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start process")
}
