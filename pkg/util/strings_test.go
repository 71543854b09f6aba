package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 25, ParseIntDefault("25", 7))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "QQQ", NormalizeSymbol(" qqq "))
}
