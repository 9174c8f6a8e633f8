package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHostPort(t *testing.T) {
	assert.Equal(t, "localhost:9000", extractHostPort("localhost:9000"))
	assert.Equal(t, "ch.internal:9000", extractHostPort("http://ch.internal"))
	assert.Equal(t, "ch.internal:9440", extractHostPort("https://ch.internal"))
	assert.Equal(t, "ch.internal", extractHostname("https://ch.internal:9440"))
}
