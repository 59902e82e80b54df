package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSizeBelowGiBUsesKB(t *testing.T) {
	assert.Equal(t, "3.00 KB", FormatSize(3*1024))
	assert.Equal(t, "0.98 KB", FormatSize(1000))
}

func TestFormatSizeAtOrAboveGiBUsesMB(t *testing.T) {
	assert.Equal(t, "1024.00 MB", FormatSize(1024*1024*1024))
	assert.Equal(t, "2048.00 MB", FormatSize(2*1024*1024*1024))
}
