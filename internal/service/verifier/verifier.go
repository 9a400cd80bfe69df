package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/release"
	"github.com/oshokin/pkgrender/internal/logger"
	"github.com/oshokin/pkgrender/internal/repository/artifact"
)

var (
	errNoFetcher  = errors.New("artifact fetcher is not set")
	errNoManifest = errors.New("build manifest is not set")
)

// fieldSourceArchive names the fetched archive content in error reports.
const fieldSourceArchive = "source_archive"

// Verifier checks the claimed source archive checksum against the artifact itself.
type Verifier struct {
	fetcher artifact.Fetcher
	inspect bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithArchiveInspection additionally requires .tar.gz/.tgz archives to be readable.
func WithArchiveInspection(enabled bool) Option {
	return func(v *Verifier) {
		v.inspect = enabled
	}
}

// New creates a Verifier using fetcher to retrieve artifacts.
func New(fetcher artifact.Fetcher, opts ...Option) *Verifier {
	v := &Verifier{fetcher: fetcher}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify fetches the source archive and compares digests.
// It fails with FetchFailed when the artifact cannot be retrieved and with
// ChecksumMismatch, carrying both digests, when the bytes differ from the claim.
func (v *Verifier) Verify(ctx context.Context, manifest *release.Manifest) error {
	if v.fetcher == nil {
		return fault.New(fault.KindFetchFailed, release.FieldSourceArchiveURL, errNoFetcher)
	}

	if manifest == nil {
		return fault.New(fault.KindMissingField, "manifest", errNoManifest)
	}

	ctx = logger.WithName(ctx, "verifier")
	claimed := manifest.SourceArchiveChecksum()

	logger.InfoKV(ctx, "Fetching source archive", "url", manifest.SourceArchiveURL())

	data, err := v.fetcher.Fetch(ctx, manifest.SourceArchiveURL())
	if err != nil {
		return fault.New(fault.KindFetchFailed, release.FieldSourceArchiveURL, err)
	}

	computed := release.Sum(claimed.Algorithm(), data)

	same, err := claimed.Compare(computed)
	if err != nil {
		return fault.New(fault.KindMalformedField, release.FieldSourceArchiveChecksum, err)
	}

	if !same {
		return &fault.Error{
			Kind:     fault.KindChecksumMismatch,
			Field:    release.FieldSourceArchiveChecksum,
			Expected: claimed.String(),
			Actual:   computed.String(),
		}
	}

	logger.InfoKV(ctx, "Source archive checksum verified",
		"algorithm", claimed.Algorithm().String(), "size", len(data))

	if v.inspect && isTarball(manifest.SourceArchiveName()) {
		entries, err := InspectTarball(data)
		if err != nil {
			return fault.New(fault.KindMalformedField, fieldSourceArchive, fmt.Errorf("inspect archive: %w", err))
		}

		logger.DebugKV(ctx, "Source archive inspected", "files", entries)
	}

	return nil
}

func isTarball(name string) bool {
	name = strings.ToLower(name)

	return strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz")
}
