// Package bundle packs generated files into deployable archives: gzip
// compressed tarballs with a manifest for the platform, and zip exports for
// download.
package bundle

import (
	"archive/tar"
	"bytes"
	"crypto/md5" //nolint:gosec // the platform manifest checksums are md5
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ManifestFile is the manifest's file name inside a bundle.
const ManifestFile = "manifest.json"

// ErrNoFiles is returned when an archive would be empty.
var ErrNoFiles = errors.New("bundle has no files")

// File is one archive member.
type File struct {
	Name string
	Data []byte
}

// Metadata describes how the platform should run a bundle.
type Metadata struct {
	AppMode    string `json:"appmode"`
	Entrypoint string `json:"entrypoint"`
}

// PackageManager points at the dependency file of a bundle.
type PackageManager struct {
	Name        string `json:"name"`
	PackageFile string `json:"package_file"`
}

// Python is the manifest's Python section.
type Python struct {
	Version        string         `json:"version,omitempty"`
	PackageManager PackageManager `json:"package_manager"`
}

// Quarto is the manifest's Quarto section.
type Quarto struct {
	Engines []string `json:"engines"`
}

// Checksum is a manifest file entry.
type Checksum struct {
	Checksum string `json:"checksum"`
}

// Manifest is the deployment descriptor the platform reads from manifest.json.
type Manifest struct {
	Version  int                 `json:"version"`
	Locale   string              `json:"locale"`
	Metadata Metadata            `json:"metadata"`
	Python   *Python             `json:"python,omitempty"`
	Quarto   *Quarto             `json:"quarto,omitempty"`
	Files    map[string]Checksum `json:"files"`
}

// NewManifest returns a manifest for files with their md5 checksums.
func NewManifest(meta Metadata, files []File) Manifest {
	m := Manifest{
		Version:  1,
		Locale:   "en_US",
		Metadata: meta,
		Files:    make(map[string]Checksum, len(files)),
	}
	for _, f := range files {
		sum := md5.Sum(f.Data) //nolint:gosec // manifest format
		m.Files[f.Name] = Checksum{Checksum: hex.EncodeToString(sum[:])}
	}
	return m
}

// QuartoManifest returns the manifest of a rendered Quarto project whose
// Python dependencies are listed in requirementsFile.
func QuartoManifest(entrypoint, requirementsFile string, files []File) Manifest {
	m := NewManifest(Metadata{AppMode: "quarto-static", Entrypoint: entrypoint}, files)
	m.Quarto = &Quarto{Engines: []string{"jupyter"}}
	m.Python = &Python{PackageManager: PackageManager{Name: "pip", PackageFile: requirementsFile}}
	return m
}

func sorted(files []File) []File {
	out := append([]File(nil), files...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WriteTarGz writes files as a gzip compressed tarball.
func WriteTarGz(w io.Writer, files []File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	now := time.Now()
	for _, f := range sorted(files) {
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    0o644,
			Size:    int64(len(f.Data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %s: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Data); err != nil {
			return fmt.Errorf("tar write %s: %w", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

// Deployable returns a tarball of files plus manifest.json.
func Deployable(m Manifest, files []File) ([]byte, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	all := append(append([]File(nil), files...), File{Name: ManifestFile, Data: raw})
	var buf bytes.Buffer
	if err := WriteTarGz(&buf, all); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip writes files as a deflate compressed zip archive.
func WriteZip(w io.Writer, files []File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	zw := zip.NewWriter(w)
	now := time.Now()
	for _, f := range sorted(files) {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("zip write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
