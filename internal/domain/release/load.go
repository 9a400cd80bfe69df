package release

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/pkgrender/internal/domain/fault"
)

// fieldManifest names the manifest document itself in error reports.
const fieldManifest = "manifest"

var errUnsupportedFormat = errors.New("unsupported manifest format")

// Load reads a Build Manifest from YAML (.yaml, .yml) or JSON with comments
// (.json, .jsonc) and validates it. Unknown keys are rejected.
func Load(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fault.New(fault.KindMissingField, fieldManifest, fmt.Errorf("read build manifest: %w", err))
	}

	spec, err := decodeSpec(filepath.Ext(path), contents)
	if err != nil {
		return nil, fault.New(fault.KindMalformedField, fieldManifest, err)
	}

	return New(spec)
}

func decodeSpec(ext string, contents []byte) (Spec, error) {
	var spec Spec

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(contents))
		decoder.KnownFields(true)

		if err := decoder.Decode(&spec); err != nil {
			return Spec{}, fmt.Errorf("decode yaml manifest: %w", err)
		}
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(contents)))
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(&spec); err != nil {
			return Spec{}, fmt.Errorf("decode json manifest: %w", err)
		}
	default:
		return Spec{}, fmt.Errorf("%q: %w", ext, errUnsupportedFormat)
	}

	return spec, nil
}
