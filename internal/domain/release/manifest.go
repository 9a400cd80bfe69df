package release

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/oshokin/pkgrender/internal/domain/fault"
)

// Manifest field names as they appear in manifest files and error reports.
const (
	FieldVersionTag            = "version_tag"
	FieldSourceArchiveURL      = "source_archive_url"
	FieldSourceArchiveChecksum = "source_archive_checksum"
	FieldArtifactChecksums     = "artifact_checksums"
)

// versionTagPattern is the accepted release tag grammar.
var versionTagPattern = regexp.MustCompile(`^v?[0-9]+\.[0-9]+\.[0-9]+(-[A-Za-z0-9.]+)?$`)

var (
	errEmptyValue       = errors.New("value is empty")
	errBadVersionTag    = errors.New("does not match the version tag grammar")
	errRelativeURL      = errors.New("url must be absolute")
	errUnsupportedURL   = errors.New("url scheme must be http, https or file")
	errURLMissingHost   = errors.New("url has no host")
	errURLTagMismatch   = errors.New("url does not reference the version tag")
	errURLMissingObject = errors.New("url does not name an archive")
)

// Spec is the raw, unvalidated form of a Build Manifest as supplied by the
// release-metadata provider.
type Spec struct {
	// VersionTag is the release tag, e.g. "v1.2.3".
	VersionTag string `json:"version_tag" yaml:"version_tag"`
	// SourceArchiveURL is the absolute location of the source tarball.
	SourceArchiveURL string `json:"source_archive_url" yaml:"source_archive_url"`
	// SourceArchiveChecksum is the claimed digest of the source tarball.
	SourceArchiveChecksum string `json:"source_archive_checksum" yaml:"source_archive_checksum"`
	// ArtifactChecksums maps platform identifiers to binary digests.
	ArtifactChecksums map[string]string `json:"artifact_checksums,omitempty" yaml:"artifact_checksums,omitempty"`
}

// Manifest is a validated, immutable Build Manifest.
type Manifest struct {
	versionTag     string
	sourceURL      string
	sourceName     string
	sourceChecksum Digest
	artifacts      map[Platform]Digest
}

// New validates spec and builds a Manifest.
// The version tag is checked first so an invalid tag is reported before anything else.
func New(spec Spec) (*Manifest, error) {
	tag := strings.TrimSpace(spec.VersionTag)
	if tag == "" {
		return nil, fault.New(fault.KindMissingField, FieldVersionTag, errEmptyValue)
	}

	if !versionTagPattern.MatchString(tag) {
		return nil, fault.New(fault.KindMalformedField, FieldVersionTag, fmt.Errorf("%q %w", tag, errBadVersionTag))
	}

	sourceURL, sourceName, err := validateSourceURL(strings.TrimSpace(spec.SourceArchiveURL), tag)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(spec.SourceArchiveChecksum) == "" {
		return nil, fault.New(fault.KindMissingField, FieldSourceArchiveChecksum, errEmptyValue)
	}

	checksum, err := ParseDigest(spec.SourceArchiveChecksum)
	if err != nil {
		return nil, fault.New(fault.KindMalformedField, FieldSourceArchiveChecksum, err)
	}

	artifacts, err := parseArtifactChecksums(spec.ArtifactChecksums)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		versionTag:     tag,
		sourceURL:      sourceURL,
		sourceName:     sourceName,
		sourceChecksum: checksum,
		artifacts:      artifacts,
	}, nil
}

// VersionTag returns the release tag exactly as published, e.g. "v1.2.3".
func (m *Manifest) VersionTag() string {
	return m.versionTag
}

// Version returns the tag without the leading "v".
func (m *Manifest) Version() string {
	return strings.TrimPrefix(m.versionTag, "v")
}

// SourceArchiveURL returns the absolute source archive URL.
func (m *Manifest) SourceArchiveURL() string {
	return m.sourceURL
}

// SourceArchiveName returns the base name of the source archive.
func (m *Manifest) SourceArchiveName() string {
	return m.sourceName
}

// SourceArchiveChecksum returns the claimed source archive digest.
func (m *Manifest) SourceArchiveChecksum() Digest {
	return m.sourceChecksum
}

// ArtifactChecksum returns the binary digest for a platform, if the release has one.
func (m *Manifest) ArtifactChecksum(platform Platform) (Digest, bool) {
	digest, ok := m.artifacts[platform]

	return digest, ok
}

// ArtifactPlatforms returns the platforms with a binary digest, in stable order.
func (m *Manifest) ArtifactPlatforms() []Platform {
	platforms := slices.Collect(maps.Keys(m.artifacts))
	slices.Sort(platforms)

	return platforms
}

// validateSourceURL checks the archive URL and returns its canonical form and base name.
func validateSourceURL(raw, tag string) (string, string, error) {
	if raw == "" {
		return "", "", fault.New(fault.KindMissingField, FieldSourceArchiveURL, errEmptyValue)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL, err)
	}

	if !parsed.IsAbs() {
		return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL, errRelativeURL)
	}

	switch parsed.Scheme {
	case "http", "https":
		if parsed.Host == "" {
			return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL, errURLMissingHost)
		}
	case "file":
	default:
		return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL,
			fmt.Errorf("%q: %w", parsed.Scheme, errUnsupportedURL))
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL, errURLMissingObject)
	}

	if !containsTag(parsed.Path, tag) {
		return "", "", fault.New(fault.KindMalformedField, FieldSourceArchiveURL,
			fmt.Errorf("%s: %w", tag, errURLTagMismatch))
	}

	return parsed.String(), name, nil
}

// containsTag reports whether tag appears in p as a whole token: preceded by
// the start or a non-alphanumeric byte, and followed by the end, '/', '_' or a
// '.' that does not continue a version number. A '-' is not a boundary, so
// v1.2.3 never matches v1.2.3-rc1.
func containsTag(p, tag string) bool {
	for offset := 0; offset <= len(p)-len(tag); {
		i := strings.Index(p[offset:], tag)
		if i < 0 {
			return false
		}

		start := offset + i
		end := start + len(tag)

		if (start == 0 || !isAlphanumeric(p[start-1])) && isTagEnd(p[end:]) {
			return true
		}

		offset = start + 1
	}

	return false
}

func isTagEnd(rest string) bool {
	if rest == "" {
		return true
	}

	switch rest[0] {
	case '/', '_':
		return true
	case '.':
		return len(rest) == 1 || !isDigit(rest[1])
	default:
		return false
	}
}

func isAlphanumeric(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func parseArtifactChecksums(raw map[string]string) (map[Platform]Digest, error) {
	artifacts := make(map[Platform]Digest, len(raw))

	// Sorted so the first reported error is stable.
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		field := FieldArtifactChecksums + "." + key

		platform, err := ParsePlatform(key)
		if err != nil {
			return nil, fault.New(fault.KindMalformedField, field, err)
		}

		if _, duplicate := artifacts[platform]; duplicate {
			return nil, fault.New(fault.KindMalformedField, field,
				fmt.Errorf("platform %s listed twice", platform))
		}

		if strings.TrimSpace(raw[key]) == "" {
			return nil, fault.New(fault.KindMissingField, field, errEmptyValue)
		}

		digest, err := ParseDigest(raw[key])
		if err != nil {
			return nil, fault.New(fault.KindMalformedField, field, err)
		}

		artifacts[platform] = digest
	}

	return artifacts, nil
}
