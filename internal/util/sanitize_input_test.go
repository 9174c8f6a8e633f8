package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Asha & Co", SanitizeInput("  Asha   & Co "))
	assert.Equal(t, "Ravi Kumar", SanitizeInput("Ravi\x00\tKumar"))
	assert.Equal(t, "A", SanitizeInput("A"))
	assert.Empty(t, SanitizeInput(" \n "))
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("<script>alert(1)</script>"))
	assert.True(t, ContainsSuspicious("${jndi}"))
	assert.True(t, ContainsSuspicious("img OnError=x"))
	assert.False(t, ContainsSuspicious("Ravi Kumar"))
}
