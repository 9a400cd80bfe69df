package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgrender/internal/domain/release"
	"github.com/oshokin/pkgrender/internal/service/engine"
)

const formulaTemplate = "url \"https://github.com/r12f/rnp/releases/download/{build_tag}/rnp.source.{build_tag}.tar.gz\"\n" +
	"sha256 \"{source_package_tar_hash}\"\n"

var archive = []byte("rnp source archive")

type cliFixture struct {
	dir      string
	config   string
	manifest string
}

// newCLIFixture lays out a config, templates, a file:// source archive and a manifest.
func newCLIFixture(t *testing.T, tag, checksum string, templates map[string]string) *cliFixture {
	t.Helper()

	dir := t.TempDir()
	fx := &cliFixture{
		dir:      dir,
		config:   filepath.Join(dir, "pkgrender.yaml"),
		manifest: filepath.Join(dir, "release.yaml"),
	}

	for rel, body := range templates {
		writeTestFile(t, filepath.Join(dir, "templates", filepath.FromSlash(rel)), []byte(body))
	}

	archivePath := filepath.Join(dir, "releases", "v1.2.3", "rnp.source.v1.2.3.tar.gz")
	writeTestFile(t, archivePath, archive)

	writeTestFile(t, fx.config, fmt.Appendf(nil,
		"tool_name: rnp\ntemplates_dir: %s\noutput_dir: %s\nlog_level: error\n",
		filepath.Join(dir, "templates"), filepath.Join(dir, "packaging")))

	writeTestFile(t, fx.manifest, fmt.Appendf(nil,
		"version_tag: %s\nsource_archive_url: file://%s\nsource_archive_checksum: %s\n",
		tag, filepath.ToSlash(archivePath), checksum))

	return fx
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// executeRoot runs the root command the way main does, minus os.Exit.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()

	return out.String(), err
}

// TestRender_ExitCodes maps run outcomes onto process exit statuses.
// Subtests share the package-level cobra command, so they run sequentially.
func TestRender_ExitCodes(t *testing.T) {
	good := release.Sum(release.AlgorithmSHA256, archive).Hex()
	bad := release.Sum(release.AlgorithmSHA256, []byte("tampered")).Hex()

	cases := []struct {
		name      string
		tag       string
		checksum  string
		templates map[string]string
		removeTar bool
		want      int
		status    string
	}{
		{
			name:      "success",
			tag:       "v1.2.3",
			checksum:  good,
			templates: map[string]string{"homebrew/rnp.rb": formulaTemplate},
			want:      engine.ExitOK,
			status:    "status: success",
		},
		{
			name:      "checksum mismatch halts",
			tag:       "v1.2.3",
			checksum:  bad,
			templates: map[string]string{"homebrew/rnp.rb": formulaTemplate},
			want:      engine.ExitHalted,
			status:    "status: halted",
		},
		{
			name:      "floating tag halts",
			tag:       "latest",
			checksum:  good,
			templates: map[string]string{"homebrew/rnp.rb": formulaTemplate},
			want:      engine.ExitHalted,
			status:    "halt_kind: MalformedField",
		},
		{
			name:      "missing archive is retryable",
			tag:       "v1.2.3",
			checksum:  good,
			templates: map[string]string{"homebrew/rnp.rb": formulaTemplate},
			removeTar: true,
			want:      engine.ExitFetchFailed,
			status:    "halt_kind: FetchFailed",
		},
		{
			name:     "one target failing is partial",
			tag:      "v1.2.3",
			checksum: good,
			templates: map[string]string{
				"homebrew/rnp.rb": formulaTemplate,
				"nix/rnp.nix":     "sha256 = \"{artifact_hash_linux_amd64}\";\n",
			},
			want:   engine.ExitPartial,
			status: "status: partial",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newCLIFixture(t, tc.tag, tc.checksum, tc.templates)
			if tc.removeTar {
				require.NoError(t, os.RemoveAll(filepath.Join(fx.dir, "releases")))
			}

			out, err := executeRoot(t, "render", "--config", fx.config, "--manifest", fx.manifest)
			require.Equal(t, tc.want, exitCode(err), "error: %v", err)
			require.Contains(t, out, tc.status)

			if tc.want != engine.ExitOK {
				var exit *exitError
				require.ErrorAs(t, err, &exit)
			}
		})
	}
}

// TestValidate_ExitCodes plans without writing and still reports partial failures.
func TestValidate_ExitCodes(t *testing.T) {
	fx := newCLIFixture(t, "v1.2.3", release.Sum(release.AlgorithmSHA256, []byte("not fetched")).Hex(),
		map[string]string{"homebrew/rnp.rb": formulaTemplate})

	out, err := executeRoot(t, "validate", "--config", fx.config, "--manifest", fx.manifest)
	require.NoError(t, err)
	require.Contains(t, out, "write: created")

	_, err = os.Stat(filepath.Join(fx.dir, "packaging"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestUsageErrors exits with the usage code when a run cannot start.
func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := executeRoot(t, "render", "--config", filepath.Join(dir, "missing.yaml"),
		"--manifest", filepath.Join(dir, "release.yaml"))
	require.Error(t, err)
	require.Equal(t, engine.ExitUsage, exitCode(err))

	configPath := filepath.Join(dir, "pkgrender.yaml")

	out, err := executeRoot(t, "init", "--config", configPath, "--tool", "rnp")
	require.NoError(t, err)
	require.Contains(t, out, "Wrote "+configPath)

	_, err = executeRoot(t, "init", "--config", configPath, "--tool", "rnp")
	require.ErrorIs(t, err, errConfigExists)
	require.Equal(t, engine.ExitUsage, exitCode(err))
}
