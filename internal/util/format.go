package util

import "fmt"

const (
	kib = 1024
	gib = 1024 * 1024 * 1024
)

// FormatSize renders a byte count the way the accept prompt and the
// sender's final statistics show it: KB below one GiB, MB at or above it, always
// two decimal places.
func FormatSize(bytes int64) string {
	if bytes >= gib {
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(1024*1024))
	}
	return fmt.Sprintf("%.2f KB", float64(bytes)/float64(kib))
}
