package bootstrap

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

// wheel is an opened, verified wheel archive.
type wheel struct {
	pkg      *Package
	zr       *zip.Reader
	distInfo string
	dataDir  string
	record   map[string]recordRow
}

func openWheel(pkg *Package) (*wheel, error) {
	zr, err := zip.NewReader(bytes.NewReader(pkg.Archive), int64(len(pkg.Archive)))
	if err != nil {
		return nil, fmt.Errorf("%s is not a readable wheel: %w", pkg.Filename, err)
	}

	w := &wheel{pkg: pkg, zr: zr}
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		if base == "RECORD" && strings.Count(dir, "/") == 1 && strings.HasSuffix(dir, ".dist-info/") {
			if w.distInfo != "" {
				return nil, fmt.Errorf("%s has more than one .dist-info directory", pkg.Filename)
			}
			w.distInfo = strings.TrimSuffix(dir, "/")
		}
	}
	if w.distInfo == "" {
		return nil, fmt.Errorf("%s has no .dist-info/RECORD", pkg.Filename)
	}
	w.dataDir = strings.TrimSuffix(w.distInfo, ".dist-info") + ".data"

	recordData, err := w.read(w.distInfo + "/RECORD")
	if err != nil {
		return nil, err
	}
	rows, err := parseRecord(bytes.NewReader(recordData))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Filename, err)
	}
	w.record = make(map[string]recordRow, len(rows))
	for _, row := range rows {
		w.record[row.Path] = row
	}
	return w, nil
}

func (w *wheel) read(name string) ([]byte, error) {
	f, err := w.zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.pkg.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", w.pkg.Filename, name, err)
	}
	return data, nil
}

// members returns the regular files of the archive except RECORD.
func (w *wheel) members() []*zip.File {
	var out []*zip.File
	for _, f := range w.zr.File {
		if f.FileInfo().IsDir() || f.Name == w.distInfo+"/RECORD" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// verify checks that every member is recorded with a matching digest and
// size, and that every recorded file is present. Nothing is written.
func (w *wheel) verify() error {
	present := map[string]bool{}
	for _, f := range w.members() {
		if !safeMemberName(f.Name) {
			return fmt.Errorf("%s: unsafe member path %q", w.pkg.Filename, f.Name)
		}
		present[f.Name] = true

		row, ok := w.record[f.Name]
		if !ok || row.Digest == "" {
			return fmt.Errorf("%s: %s is not listed in RECORD with a digest", w.pkg.Filename, f.Name)
		}
		data, err := w.read(f.Name)
		if err != nil {
			return err
		}
		if err := verifyDigest(data, row); err != nil {
			return fmt.Errorf("%s: %w", w.pkg.Filename, err)
		}
	}

	for name, row := range w.record {
		if row.Digest != "" && !present[name] {
			return fmt.Errorf("%s: RECORD lists missing file %s", w.pkg.Filename, name)
		}
	}
	return nil
}

func safeMemberName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// unpackedSize is the sum of the uncompressed member sizes.
func (w *wheel) unpackedSize() uint64 {
	var total uint64
	for _, f := range w.zr.File {
		total += f.UncompressedSize64
	}
	return total
}

type memberKind int

const (
	kindLibrary memberKind = iota
	kindScript
	kindIgnored
)

// target maps an archive member to its destination in the environment.
func (w *wheel) target(name string, paths *layout.Paths) (string, memberKind) {
	rest, ok := strings.CutPrefix(name, w.dataDir+"/")
	if !ok {
		return filepath.Join(paths.SitePackages, filepath.FromSlash(name)), kindLibrary
	}
	scheme, sub, _ := strings.Cut(rest, "/")
	switch scheme {
	case "purelib", "platlib":
		return filepath.Join(paths.SitePackages, filepath.FromSlash(sub)), kindLibrary
	case "scripts":
		return filepath.Join(paths.Bin, filepath.FromSlash(sub)), kindScript
	default:
		return "", kindIgnored
	}
}

// installed tracks the files written for one package.
type installed struct {
	rows []recordRow
}

func (in *installed) add(paths *layout.Paths, dst string, data []byte) error {
	rel, err := filepath.Rel(paths.SitePackages, dst)
	if err != nil {
		return err
	}
	digest, err := computeDigest(data, "sha256")
	if err != nil {
		return err
	}
	in.rows = append(in.rows, recordRow{
		Path:   filepath.ToSlash(rel),
		Digest: digest,
		Size:   strconv.Itoa(len(data)),
	})
	return nil
}

// install extracts the verified wheel into the environment, generates its
// console scripts and writes INSTALLER and the installed-file RECORD.
func (w *wheel) install(paths *layout.Paths, interp *interpreter.Interpreter) error {
	var result installed

	for _, f := range w.members() {
		dst, kind := w.target(f.Name, paths)
		if kind == kindIgnored {
			continue
		}
		data, err := w.read(f.Name)
		if err != nil {
			return err
		}

		mode := os.FileMode(0o644)
		if f.Mode().Perm()&0o111 != 0 {
			mode = 0o755
		}
		if kind == kindScript {
			mode = 0o755
			data = rewriteScriptShebang(data, paths.Python())
		}

		if err := writeFile(dst, data, mode); err != nil {
			return err
		}
		if err := result.add(paths, dst, data); err != nil {
			return err
		}
	}

	scripts, err := w.consoleScripts(paths, interp)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if err := writeFile(s.path, s.content, 0o755); err != nil {
			return err
		}
		if err := result.add(paths, s.path, s.content); err != nil {
			return err
		}
	}

	installer := filepath.Join(paths.SitePackages, filepath.FromSlash(w.distInfo), "INSTALLER")
	installerData := []byte("pip\n")
	if err := writeFile(installer, installerData, 0o644); err != nil {
		return err
	}
	if err := result.add(paths, installer, installerData); err != nil {
		return err
	}

	record, err := formatRecord(result.rows, w.distInfo+"/RECORD")
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(paths.SitePackages, filepath.FromSlash(w.distInfo), "RECORD"), record, 0o644)
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

// rewriteScriptShebang points "#!python" and "#!pythonw" lines of wheel
// scripts at the environment's interpreter.
func rewriteScriptShebang(data []byte, python string) []byte {
	for _, marker := range []string{"#!pythonw", "#!python"} {
		if !bytes.HasPrefix(data, []byte(marker)) {
			continue
		}
		rest := data[len(marker):]
		if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' && rest[0] != ' ' {
			continue
		}
		return append([]byte(shebang(python)), rest...)
	}
	return data
}
