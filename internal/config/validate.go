package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ValidateNonEmpty checks that s is not empty after trimming whitespace.
func ValidateNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

// ValidateFileExists checks that the path points to an existing file.
func ValidateFileExists(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	return nil
}

// ValidateHostPort checks that s is a valid host:port address.
func ValidateHostPort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("address is required")
	}
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("invalid address (expected host:port): %w", err)
	}
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	return nil
}

// ValidateOptionalHostPort checks a host:port only if non-empty.
func ValidateOptionalHostPort(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return ValidateHostPort(s)
}
