package bootstrap

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
)

// decodeArchive strips a .bz2 or .gz suffix from name and decompresses data
// accordingly. Other names are returned unchanged.
func decodeArchive(name string, data []byte) (string, []byte, error) {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		br, err := bzip2.NewReader(bytes.NewReader(data), &bzip2.ReaderConfig{})
		if err != nil {
			return "", nil, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		defer br.Close()
		out, err := io.ReadAll(br)
		if err != nil {
			return "", nil, fmt.Errorf("reading bzip2 data: %w", err)
		}
		return strings.TrimSuffix(name, ".bz2"), out, nil

	case strings.HasSuffix(name, ".gz"):
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return "", nil, fmt.Errorf("reading gzip data: %w", err)
		}
		return strings.TrimSuffix(name, ".gz"), out, nil
	}
	return name, data, nil
}
