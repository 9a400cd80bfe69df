package placeholder

import (
	"errors"
	"fmt"

	"github.com/oshokin/pkgrender/internal/domain/release"
)

// Name is one entry of the placeholder vocabulary.
// Adding an entry means extending this enumeration, its key and the resolver.
type Name int

const (
	BuildTag Name = iota + 1
	BuildVersion
	SourcePackageURL
	SourcePackageName
	SourcePackageTarHash
	SourcePackageHashAlgorithm
	ArtifactHashLinuxAMD64
	ArtifactHashLinuxARM64
	ArtifactHashDarwinAMD64
	ArtifactHashDarwinARM64
	ArtifactHashWindowsAMD64
	ArtifactHashWindowsARM64
)

// ErrUnknown is returned for names outside the vocabulary.
var ErrUnknown = errors.New("unknown placeholder")

// All returns the whole vocabulary in declaration order.
func All() []Name {
	names := make([]Name, 0, int(ArtifactHashWindowsARM64))
	for name := BuildTag; name <= ArtifactHashWindowsARM64; name++ {
		names = append(names, name)
	}

	return names
}

// String returns the key written between braces in templates.
func (n Name) String() string {
	switch n {
	case BuildTag:
		return "build_tag"
	case BuildVersion:
		return "build_version"
	case SourcePackageURL:
		return "source_package_url"
	case SourcePackageName:
		return "source_package_name"
	case SourcePackageTarHash:
		return "source_package_tar_hash"
	case SourcePackageHashAlgorithm:
		return "source_package_hash_algorithm"
	case ArtifactHashLinuxAMD64:
		return "artifact_hash_linux_amd64"
	case ArtifactHashLinuxARM64:
		return "artifact_hash_linux_arm64"
	case ArtifactHashDarwinAMD64:
		return "artifact_hash_darwin_amd64"
	case ArtifactHashDarwinARM64:
		return "artifact_hash_darwin_arm64"
	case ArtifactHashWindowsAMD64:
		return "artifact_hash_windows_amd64"
	case ArtifactHashWindowsARM64:
		return "artifact_hash_windows_arm64"
	default:
		return fmt.Sprintf("placeholder(%d)", int(n))
	}
}

// Marker returns the template marker for the name, e.g. "{build_tag}".
func (n Name) Marker() string {
	return "{" + n.String() + "}"
}

// IsRequired reports whether every release must provide a value.
// Per-platform artifact hashes are optional; only templates that use them need them.
func (n Name) IsRequired() bool {
	_, isArtifact := n.Platform()

	return !isArtifact
}

// Platform returns the platform of an artifact hash entry.
func (n Name) Platform() (release.Platform, bool) {
	switch n {
	case ArtifactHashLinuxAMD64:
		return release.PlatformLinuxAMD64, true
	case ArtifactHashLinuxARM64:
		return release.PlatformLinuxARM64, true
	case ArtifactHashDarwinAMD64:
		return release.PlatformDarwinAMD64, true
	case ArtifactHashDarwinARM64:
		return release.PlatformDarwinARM64, true
	case ArtifactHashWindowsAMD64:
		return release.PlatformWindowsAMD64, true
	case ArtifactHashWindowsARM64:
		return release.PlatformWindowsARM64, true
	default:
		return 0, false
	}
}

// Parse looks a key up in the vocabulary. Keys are case-sensitive.
func Parse(key string) (Name, error) {
	for _, name := range All() {
		if name.String() == key {
			return name, nil
		}
	}

	return 0, fmt.Errorf("%q: %w", key, ErrUnknown)
}
