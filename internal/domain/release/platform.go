package release

import (
	"errors"
	"fmt"
	"strings"
)

// Platform identifies an os/arch pair a binary artifact is built for.
type Platform int

const (
	PlatformLinuxAMD64 Platform = iota + 1
	PlatformLinuxARM64
	PlatformDarwinAMD64
	PlatformDarwinARM64
	PlatformWindowsAMD64
	PlatformWindowsARM64
)

var errUnknownPlatform = errors.New("unknown platform")

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{
		PlatformLinuxAMD64,
		PlatformLinuxARM64,
		PlatformDarwinAMD64,
		PlatformDarwinARM64,
		PlatformWindowsAMD64,
		PlatformWindowsARM64,
	}
}

// String returns the "os-arch" identifier used as a manifest key.
func (p Platform) String() string {
	switch p {
	case PlatformLinuxAMD64:
		return "linux-amd64"
	case PlatformLinuxARM64:
		return "linux-arm64"
	case PlatformDarwinAMD64:
		return "darwin-amd64"
	case PlatformDarwinARM64:
		return "darwin-arm64"
	case PlatformWindowsAMD64:
		return "windows-amd64"
	case PlatformWindowsARM64:
		return "windows-arm64"
	default:
		return "unknown"
	}
}

// ParsePlatform converts a manifest key. Underscores are accepted in place of the dash.
func ParsePlatform(s string) (Platform, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")

	for _, platform := range Platforms() {
		if platform.String() == normalized {
			return platform, nil
		}
	}

	return 0, fmt.Errorf("%q: %w", s, errUnknownPlatform)
}
