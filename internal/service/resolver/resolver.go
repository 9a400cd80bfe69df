package resolver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/placeholder"
	"github.com/oshokin/pkgrender/internal/domain/release"
)

var (
	errNoManifest     = errors.New("build manifest is not set")
	errNoValue        = errors.New("no value in build manifest")
	errNotHexDigest   = errors.New("value is not a hex digest of the expected length")
	errNotAbsoluteURL = errors.New("value is not an absolute url")
	errUnmapped       = errors.New("placeholder has no extraction rule")
)

// Resolve computes a value for every vocabulary entry the manifest can satisfy.
// A required entry without a value fails with MissingField; a value of the
// wrong shape fails with MalformedField. Optional entries the release does not
// carry are simply absent from the table.
func Resolve(manifest *release.Manifest) (*placeholder.Table, error) {
	if manifest == nil {
		return nil, fault.New(fault.KindMissingField, "manifest", errNoManifest)
	}

	values := make(map[placeholder.Name]string, len(placeholder.All()))

	for _, name := range placeholder.All() {
		value, ok, err := extract(name, manifest)
		if err != nil {
			return nil, err
		}

		if !ok || value == "" {
			if name.IsRequired() {
				return nil, fault.New(fault.KindMissingField, sourceField(name),
					fmt.Errorf("%s: %w", name, errNoValue))
			}

			continue
		}

		if err = checkShape(name, value); err != nil {
			return nil, fault.New(fault.KindMalformedField, sourceField(name), fmt.Errorf("%s: %w", name, err))
		}

		values[name] = value
	}

	return placeholder.NewTable(values), nil
}

// extract is the single extraction rule of each vocabulary entry.
func extract(name placeholder.Name, m *release.Manifest) (string, bool, error) {
	switch name {
	case placeholder.BuildTag:
		return m.VersionTag(), true, nil
	case placeholder.BuildVersion:
		return m.Version(), true, nil
	case placeholder.SourcePackageURL:
		return m.SourceArchiveURL(), true, nil
	case placeholder.SourcePackageName:
		return m.SourceArchiveName(), true, nil
	case placeholder.SourcePackageTarHash:
		return m.SourceArchiveChecksum().Hex(), true, nil
	case placeholder.SourcePackageHashAlgorithm:
		return m.SourceArchiveChecksum().Algorithm().String(), true, nil
	case placeholder.ArtifactHashLinuxAMD64,
		placeholder.ArtifactHashLinuxARM64,
		placeholder.ArtifactHashDarwinAMD64,
		placeholder.ArtifactHashDarwinARM64,
		placeholder.ArtifactHashWindowsAMD64,
		placeholder.ArtifactHashWindowsARM64:
		platform, _ := name.Platform()
		digest, ok := m.ArtifactChecksum(platform)

		return digest.Hex(), ok, nil
	default:
		return "", false, fault.New(fault.KindMalformedField, name.String(), errUnmapped)
	}
}

// checkShape re-asserts the manifest invariants on the values actually handed to templates.
func checkShape(name placeholder.Name, value string) error {
	switch name {
	case placeholder.SourcePackageTarHash:
		return checkHexDigest(value)
	case placeholder.SourcePackageURL:
		parsed, err := url.Parse(value)
		if err != nil || !parsed.IsAbs() {
			return errNotAbsoluteURL
		}
	case placeholder.BuildTag, placeholder.BuildVersion, placeholder.SourcePackageName,
		placeholder.SourcePackageHashAlgorithm:
	default:
		if _, isArtifact := name.Platform(); isArtifact {
			return checkHexDigest(value)
		}
	}

	return nil
}

func checkHexDigest(value string) error {
	switch len(value) {
	case release.AlgorithmSHA256.HexLen(), release.AlgorithmSHA512.HexLen():
	default:
		return errNotHexDigest
	}

	if _, err := hex.DecodeString(value); err != nil {
		return errNotHexDigest
	}

	return nil
}

// sourceField names the manifest field an entry is extracted from.
func sourceField(name placeholder.Name) string {
	switch name {
	case placeholder.BuildTag, placeholder.BuildVersion:
		return release.FieldVersionTag
	case placeholder.SourcePackageURL, placeholder.SourcePackageName:
		return release.FieldSourceArchiveURL
	case placeholder.SourcePackageTarHash, placeholder.SourcePackageHashAlgorithm:
		return release.FieldSourceArchiveChecksum
	default:
		if platform, ok := name.Platform(); ok {
			return release.FieldArtifactChecksums + "." + platform.String()
		}

		return name.String()
	}
}
