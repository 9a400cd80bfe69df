package verifier

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/release"
)

const archiveURL = "https://github.com/r12f/rnp/releases/download/v1.2.3/rnp.source.v1.2.3.tar.gz"

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	s.calls++

	return s.data, s.err
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buffer bytes.Buffer

	gz := gzip.NewWriter(&buffer)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))

		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buffer.Bytes()
}

func manifestFor(t *testing.T, checksum string) *release.Manifest {
	t.Helper()

	m, err := release.New(release.Spec{
		VersionTag:            "v1.2.3",
		SourceArchiveURL:      archiveURL,
		SourceArchiveChecksum: checksum,
	})
	require.NoError(t, err)

	return m
}

// TestVerify_Match accepts an archive whose digest equals the claim.
func TestVerify_Match(t *testing.T) {
	t.Parallel()

	data := buildTarball(t, map[string]string{"rnp/Cargo.toml": "[package]\n"})
	fetcher := &stubFetcher{data: data}

	for _, algorithm := range []release.Algorithm{release.AlgorithmSHA256, release.AlgorithmSHA512, release.AlgorithmBLAKE3} {
		claim := release.Sum(algorithm, data).String()

		err := New(fetcher, WithArchiveInspection(true)).Verify(context.Background(), manifestFor(t, claim))
		require.NoError(t, err, algorithm.String())
	}

	require.Equal(t, 3, fetcher.calls)
}

// TestVerify_Mismatch reports both digests and is not retryable.
func TestVerify_Mismatch(t *testing.T) {
	t.Parallel()

	claimed := release.Sum(release.AlgorithmSHA256, []byte("published"))
	fetcher := &stubFetcher{data: []byte("tampered")}

	err := New(fetcher).Verify(context.Background(), manifestFor(t, claimed.Hex()))
	require.Error(t, err)

	var classified *fault.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, fault.KindChecksumMismatch, classified.Kind)
	require.Equal(t, claimed.String(), classified.Expected)
	require.Equal(t, release.Sum(release.AlgorithmSHA256, []byte("tampered")).String(), classified.Actual)
	require.False(t, fault.IsRetryable(err))
}

// TestVerify_FetchFailed classifies fetch errors as retryable.
func TestVerify_FetchFailed(t *testing.T) {
	t.Parallel()

	claimed := release.Sum(release.AlgorithmSHA256, []byte("x"))
	fetcher := &stubFetcher{err: errors.New("connection refused")}

	err := New(fetcher).Verify(context.Background(), manifestFor(t, claimed.Hex()))
	require.Equal(t, fault.KindFetchFailed, fault.KindOf(err))
	require.True(t, fault.IsRetryable(err))

	err = New(nil).Verify(context.Background(), manifestFor(t, claimed.Hex()))
	require.Equal(t, fault.KindFetchFailed, fault.KindOf(err))
}

// TestVerify_BrokenArchive rejects matching bytes that are not a tarball when inspection is on.
func TestVerify_BrokenArchive(t *testing.T) {
	t.Parallel()

	data := []byte("not a gzip stream")
	claim := release.Sum(release.AlgorithmSHA256, data).Hex()

	err := New(&stubFetcher{data: data}, WithArchiveInspection(true)).Verify(context.Background(), manifestFor(t, claim))
	require.Equal(t, fault.KindMalformedField, fault.KindOf(err))

	err = New(&stubFetcher{data: data}).Verify(context.Background(), manifestFor(t, claim))
	require.NoError(t, err)
}

// TestInspectTarball counts regular files and rejects empty archives.
func TestInspectTarball(t *testing.T) {
	t.Parallel()

	files, err := InspectTarball(buildTarball(t, map[string]string{"a": "1", "b/c": "2"}))
	require.NoError(t, err)
	require.Equal(t, 2, files)

	_, err = InspectTarball(buildTarball(t, nil))
	require.ErrorIs(t, err, errNoRegularFiles)
}
