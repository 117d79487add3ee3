package helpers

import (
	"errors"
	"strings"
)

func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// TrimExt removes a trailing file extension such as ".html" from a URL path segment.
func TrimExt(segment string) string {
	if idx := strings.LastIndex(segment, "."); idx > 0 {
		return segment[:idx]
	}
	return segment
}
