package bootstrap

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"hash"
	"io"
	"sort"
	"strconv"
	"strings"
)

// recordRow is one line of a RECORD manifest: path, digest and size.
type recordRow struct {
	Path   string
	Digest string
	Size   string
}

// newHash returns the hash for a RECORD digest algorithm.
func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
}

// parseDigest splits "sha256=<urlsafe-b64>" into algorithm and value.
func parseDigest(digest string) (string, string, error) {
	algorithm, value, ok := strings.Cut(digest, "=")
	if !ok || value == "" {
		return "", "", fmt.Errorf("invalid digest format: %q", digest)
	}
	return algorithm, value, nil
}

// computeDigest renders data's digest the way RECORD stores it.
func computeDigest(data []byte, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return algorithm + "=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// verifyDigest checks data against a RECORD digest and optional size.
func verifyDigest(data []byte, row recordRow) error {
	algorithm, _, err := parseDigest(row.Digest)
	if err != nil {
		return err
	}
	actual, err := computeDigest(data, algorithm)
	if err != nil {
		return err
	}
	// Some producers pad the base64 value
	if actual != strings.TrimRight(row.Digest, "=") && actual != row.Digest {
		return fmt.Errorf("digest mismatch for %s", row.Path)
	}
	if row.Size != "" {
		size, err := strconv.ParseInt(row.Size, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q for %s", row.Size, row.Path)
		}
		if size != int64(len(data)) {
			return fmt.Errorf("size mismatch for %s: recorded %d, actual %d", row.Path, size, len(data))
		}
	}
	return nil
}

func parseRecord(r io.Reader) ([]recordRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows []recordRow
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing RECORD: %w", err)
		}
		if len(fields) == 0 || (len(fields) == 1 && fields[0] == "") {
			continue
		}
		row := recordRow{Path: fields[0]}
		if len(fields) > 1 {
			row.Digest = fields[1]
		}
		if len(fields) > 2 {
			row.Size = fields[2]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// formatRecord renders rows sorted by path, with recordPath last and empty
// digest and size as RECORD lists itself.
func formatRecord(rows []recordRow, recordPath string) ([]byte, error) {
	sorted := append([]recordRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range sorted {
		if err := w.Write([]string{row.Path, row.Digest, row.Size}); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{recordPath, "", ""}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
