package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/release"
	"github.com/oshokin/pkgrender/internal/domain/template"
	"github.com/oshokin/pkgrender/internal/repository/packaging"
	"github.com/oshokin/pkgrender/internal/service/verifier"
)

const (
	archiveURL = "https://github.com/r12f/rnp/releases/download/v1.2.3/rnp.source.v1.2.3.tar.gz"

	formulaTemplate = "class Rnp < Formula\n" +
		"  url \"https://github.com/r12f/rnp/releases/download/{build_tag}/rnp.source.{build_tag}.tar.gz\"\n" +
		"  sha256 \"{source_package_tar_hash}\"\n" +
		"  def install\n" +
		"    ohai \"rnp #{{version}}\"\n" +
		"  end\n" +
		"end\n"

	scoopTemplate = "{{\n  \"version\": \"{build_version}\",\n  \"hash\": \"{source_package_hash_algorithm}:{source_package_tar_hash}\"\n}}\n"

	wingetTemplate = "PackageVersion: {build_version}\nInstallerUrl: {source_package_url}\n"
)

var archive = []byte("rnp source archive v1.2.3")

type stubFetcher struct {
	data  []byte
	err   error
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	s.calls.Add(1)

	return s.data, s.err
}

type memoryEmitter struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]bool
}

func newMemoryEmitter(failing ...string) *memoryEmitter {
	e := &memoryEmitter{
		files: make(map[string]string),
		fail:  make(map[string]bool),
	}

	for _, path := range failing {
		e.fail[path] = true
	}

	return e
}

func (e *memoryEmitter) Write(_ context.Context, relPath string, content []byte) (packaging.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fail[relPath] {
		return "", errors.New("disk full")
	}

	e.files[relPath] = string(content)

	return packaging.StatusCreated, nil
}

func (e *memoryEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.files)
}

func archiveChecksum() string {
	return release.Sum(release.AlgorithmSHA256, archive).Hex()
}

func newManifest(t *testing.T, artifacts map[string]string) *release.Manifest {
	t.Helper()

	m, err := release.New(release.Spec{
		VersionTag:            "v1.2.3",
		SourceArchiveURL:      archiveURL,
		SourceArchiveChecksum: archiveChecksum(),
		ArtifactChecksums:     artifacts,
	})
	require.NoError(t, err)

	return m
}

func newSet(t *testing.T, bodies map[string]string) *template.Set {
	t.Helper()

	outputs := map[string]string{
		"homebrew": "homebrew/rnp.rb",
		"scoop":    "scoop/rnp.json",
		"winget":   "winget/rnp.yaml",
		"nix":      "nix/rnp.nix",
	}

	templates := make([]*template.Template, 0, len(bodies))

	for target, body := range bodies {
		tpl, err := template.Parse(target, outputs[target], []byte(body))
		require.NoError(t, err)

		templates = append(templates, tpl)
	}

	set, err := template.NewSet(templates...)
	require.NoError(t, err)

	return set
}

func newEngine(fetcher *stubFetcher, emitter Emitter, opts ...Option) *Engine {
	return New(verifier.New(fetcher), emitter, opts...)
}

// TestRender_Formula renders the Homebrew formula for v1.2.3 end to end.
func TestRender_Formula(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{data: archive}
	emitter := newMemoryEmitter()

	summary := newEngine(fetcher, emitter).Render(context.Background(),
		newManifest(t, nil), newSet(t, map[string]string{"homebrew": formulaTemplate}))

	require.Equal(t, RunSucceeded, summary.Status)
	require.Equal(t, ExitOK, summary.ExitCode())
	require.NoError(t, summary.Err())
	require.EqualValues(t, 1, fetcher.calls.Load())

	want := "class Rnp < Formula\n" +
		"  url \"https://github.com/r12f/rnp/releases/download/v1.2.3/rnp.source.v1.2.3.tar.gz\"\n" +
		"  sha256 \"" + archiveChecksum() + "\"\n" +
		"  def install\n" +
		"    ohai \"rnp #{version}\"\n" +
		"  end\n" +
		"end\n"
	if diff := cmp.Diff(want, emitter.files["homebrew/rnp.rb"]); diff != "" {
		t.Fatalf("formula mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, summary.Targets, 1)
	require.Equal(t, TargetSucceeded, summary.Targets[0].Status)
	require.Equal(t, []string{"build_tag", "source_package_tar_hash"}, summary.Targets[0].Placeholders)
}

// TestRender_Deterministic produces byte-identical output for identical inputs.
func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"homebrew": formulaTemplate,
		"scoop":    scoopTemplate,
		"winget":   wingetTemplate,
	}

	root := t.TempDir()
	render := func() *Summary {
		return newEngine(&stubFetcher{data: archive}, packaging.NewWriter(root)).
			Render(context.Background(), newManifest(t, nil), newSet(t, bodies))
	}

	first := render()
	require.Equal(t, RunSucceeded, first.Status)

	snapshot := make(map[string][]byte)
	for _, report := range first.Targets {
		require.Equal(t, packaging.StatusCreated, report.Write)

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(report.Path)))
		require.NoError(t, err)

		snapshot[report.Path] = data
	}

	second := render()
	require.Equal(t, RunSucceeded, second.Status)

	for _, report := range second.Targets {
		require.Equal(t, packaging.StatusUnchanged, report.Write)

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(report.Path)))
		require.NoError(t, err)
		require.Equal(t, snapshot[report.Path], data)
	}

	scoop := string(snapshot["scoop/rnp.json"])
	require.Contains(t, scoop, "\"hash\": \"sha256:"+archiveChecksum()+"\"")
	require.True(t, strings.HasPrefix(scoop, "{\n"))
}

// TestRender_ChecksumMismatch blocks every target and writes nothing.
func TestRender_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{data: []byte("tampered archive")}
	emitter := newMemoryEmitter()

	summary := newEngine(fetcher, emitter).Render(context.Background(), newManifest(t, nil),
		newSet(t, map[string]string{"homebrew": formulaTemplate, "scoop": scoopTemplate}))

	require.Equal(t, RunHalted, summary.Status)
	require.Equal(t, fault.KindChecksumMismatch, summary.HaltKind)
	require.Equal(t, ExitHalted, summary.ExitCode())
	require.Zero(t, emitter.count())

	require.Len(t, summary.Targets, 2)
	for _, report := range summary.Targets {
		require.Equal(t, TargetBlocked, report.Status)
		require.Empty(t, report.Write)
	}

	var faultErr *fault.Error
	require.ErrorAs(t, summary.Err(), &faultErr)
	require.Equal(t, "sha256:"+archiveChecksum(), faultErr.Expected)
	require.Equal(t, release.Sum(release.AlgorithmSHA256, []byte("tampered archive")).String(), faultErr.Actual)
}

// TestRender_FetchFailed halts with a retryable failure.
func TestRender_FetchFailed(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection reset")}
	emitter := newMemoryEmitter()

	summary := newEngine(fetcher, emitter).Render(context.Background(), newManifest(t, nil),
		newSet(t, map[string]string{"homebrew": formulaTemplate}))

	require.Equal(t, RunHalted, summary.Status)
	require.Equal(t, fault.KindFetchFailed, summary.HaltKind)
	require.Equal(t, ExitFetchFailed, summary.ExitCode())
	require.True(t, fault.IsRetryable(summary.Err()))
	require.Zero(t, emitter.count())
}

// TestRender_UnresolvedIsolated fails one target without touching its sibling.
func TestRender_UnresolvedIsolated(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{data: archive}
	emitter := newMemoryEmitter()

	bodies := map[string]string{
		"homebrew": formulaTemplate,
		"nix":      "sha256 = \"{artifact_hash_darwin_arm64}\";\n",
	}

	summary := newEngine(fetcher, emitter).Render(context.Background(), newManifest(t, nil), newSet(t, bodies))

	require.Equal(t, RunPartial, summary.Status)
	require.Equal(t, ExitPartial, summary.ExitCode())

	failed := summary.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "nix", failed[0].Target)
	require.Equal(t, fault.KindUnresolvedPlaceholder, failed[0].ErrorKind)
	require.Contains(t, failed[0].Error, "{artifact_hash_darwin_arm64}")

	require.Contains(t, emitter.files, "homebrew/rnp.rb")
	require.NotContains(t, emitter.files, "nix/rnp.nix")

	require.ErrorIs(t, summary.Err(), errTargetsFailed)
	require.Equal(t, fault.KindUnresolvedPlaceholder, fault.KindOf(summary.Err()))
}

// TestRender_ArtifactHashes fills per-platform digests when the manifest has them.
func TestRender_ArtifactHashes(t *testing.T) {
	t.Parallel()

	darwin := strings.Repeat("c", 64)
	emitter := newMemoryEmitter()

	summary := newEngine(&stubFetcher{data: archive}, emitter).Render(context.Background(),
		newManifest(t, map[string]string{"darwin-arm64": darwin}),
		newSet(t, map[string]string{"nix": "sha256 = \"{artifact_hash_darwin_arm64}\";\n"}))

	require.Equal(t, RunSucceeded, summary.Status)
	require.Equal(t, "sha256 = \""+darwin+"\";\n", emitter.files["nix/rnp.nix"])
}

// TestRender_WriteFailureIsolated keeps the other targets written when one write fails.
func TestRender_WriteFailureIsolated(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// A regular file where the scoop directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(root, "scoop"), []byte("blocker"), 0o600))

	bodies := map[string]string{
		"homebrew": formulaTemplate,
		"scoop":    scoopTemplate,
		"winget":   wingetTemplate,
	}

	summary := newEngine(&stubFetcher{data: archive}, packaging.NewWriter(root), WithWorkers(2)).
		Render(context.Background(), newManifest(t, nil), newSet(t, bodies))

	require.Equal(t, RunPartial, summary.Status)

	failed := summary.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "scoop", failed[0].Target)
	require.Equal(t, fault.KindWriteFailed, failed[0].ErrorKind)

	for _, path := range []string{"homebrew/rnp.rb", "winget/rnp.yaml"} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(path)))
		require.NoError(t, err, path)
	}

	data, err := os.ReadFile(filepath.Join(root, "scoop"))
	require.NoError(t, err)
	require.Equal(t, "blocker", string(data))
}

// TestRender_SingleWorker processes every target with one worker.
func TestRender_SingleWorker(t *testing.T) {
	t.Parallel()

	emitter := newMemoryEmitter("winget/rnp.yaml")

	summary := newEngine(&stubFetcher{data: archive}, emitter, WithWorkers(1)).Render(context.Background(),
		newManifest(t, nil), newSet(t, map[string]string{
			"homebrew": formulaTemplate,
			"scoop":    scoopTemplate,
			"winget":   wingetTemplate,
		}))

	require.Equal(t, []string{"homebrew", "scoop", "winget"}, []string{
		summary.Targets[0].Target, summary.Targets[1].Target, summary.Targets[2].Target,
	})
	require.Equal(t, 2, emitter.count())
	require.Equal(t, fault.KindWriteFailed, summary.Targets[2].ErrorKind)
}

// TestRender_CanceledContext reports every target as failed without writing.
func TestRender_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emitter := newMemoryEmitter()

	summary := New(skipGate{}, emitter).Render(ctx, newManifest(t, nil),
		newSet(t, map[string]string{"homebrew": formulaTemplate}))

	require.Equal(t, RunPartial, summary.Status)
	require.Zero(t, emitter.count())
	require.ErrorIs(t, summary.Err(), context.Canceled)
	require.Equal(t, fault.KindUnknown, summary.Targets[0].ErrorKind)

	data, err := summary.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(data), "error_kind: Unknown")
}

// TestRender_MissingCollaborators halts without a gate or template set.
func TestRender_MissingCollaborators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	set := newSet(t, map[string]string{"homebrew": formulaTemplate})

	summary := New(nil, newMemoryEmitter()).Render(ctx, newManifest(t, nil), set)
	require.Equal(t, RunHalted, summary.Status)
	require.Equal(t, fault.KindFetchFailed, summary.HaltKind)
	require.Equal(t, TargetBlocked, summary.Targets[0].Status)

	summary = New(skipGate{}, newMemoryEmitter()).Render(ctx, newManifest(t, nil), nil)
	require.Equal(t, RunHalted, summary.Status)
	require.Equal(t, fault.KindMissingField, summary.HaltKind)

	summary = New(skipGate{}, newMemoryEmitter()).Render(ctx, nil, set)
	require.Equal(t, fault.KindMissingField, summary.HaltKind)
}
