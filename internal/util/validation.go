package util

import (
	"regexp"
)

const maxDeviceIDLength = 128

var (
	uuidRegex     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

// IsValidDeviceID accepts the opaque identifiers clients generate for a
// device: printable ASCII without spaces or slashes, at most 128 bytes.
func IsValidDeviceID(s string) bool {
	if s == "" || len(s) > maxDeviceIDLength {
		return false
	}
	return deviceIDRegex.MatchString(s)
}
