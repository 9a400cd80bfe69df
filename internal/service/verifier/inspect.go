package verifier

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var errNoRegularFiles = errors.New("archive has no regular files")

// InspectTarball reads a gzip-compressed tar stream to the end and returns the
// number of regular files in it.
func InspectTarball(data []byte) (int, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("open gzip: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	var (
		reader = tar.NewReader(gz)
		files  int
	)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return 0, fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		if _, err = io.Copy(io.Discard, reader); err != nil {
			return 0, fmt.Errorf("read %s: %w", header.Name, err)
		}

		files++
	}

	if files == 0 {
		return 0, errNoRegularFiles
	}

	return files, nil
}
