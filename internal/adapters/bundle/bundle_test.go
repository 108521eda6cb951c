package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	. "github.com/smartystreets/goconvey/convey"
)

var files = []File{
	{Name: "index.qmd", Data: []byte("# hello\n")},
	{Name: "requirements.txt", Data: []byte("requests\n")},
}

func TestManifest(t *testing.T) {
	Convey("Given project files", t, func() {
		m := QuartoManifest("index.qmd", "requirements.txt", files)

		So(m.Metadata.AppMode, ShouldEqual, "quarto-static")
		So(m.Metadata.Entrypoint, ShouldEqual, "index.qmd")
		So(m.Files, ShouldHaveLength, 2)
		// md5("# hello\n")
		So(m.Files["index.qmd"].Checksum, ShouldEqual, "487deb0527aa4445bfa958e3dd999279")
		So(m.Python.PackageManager.PackageFile, ShouldEqual, "requirements.txt")
	})
}

func TestDeployable(t *testing.T) {
	Convey("Given a deployable bundle", t, func() {
		raw, err := Deployable(QuartoManifest("index.qmd", "requirements.txt", files), files)
		So(err, ShouldBeNil)

		gz, err := gzip.NewReader(bytes.NewReader(raw))
		So(err, ShouldBeNil)
		tr := tar.NewReader(gz)
		contents := map[string]string{}
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			So(err, ShouldBeNil)
			data, _ := io.ReadAll(tr)
			contents[hdr.Name] = string(data)
		}

		So(contents, ShouldHaveLength, 3)
		So(contents["index.qmd"], ShouldEqual, "# hello\n")

		var m Manifest
		So(json.Unmarshal([]byte(contents[ManifestFile]), &m), ShouldBeNil)
		So(m.Files, ShouldContainKey, "requirements.txt")
		So(m.Files, ShouldNotContainKey, ManifestFile)
	})

	Convey("Empty archives are rejected", t, func() {
		So(errors.Is(WriteTarGz(io.Discard, nil), ErrNoFiles), ShouldBeTrue)
		So(errors.Is(WriteZip(io.Discard, nil), ErrNoFiles), ShouldBeTrue)
	})
}

func TestWriteZip(t *testing.T) {
	Convey("Given a zip export", t, func() {
		var buf bytes.Buffer
		So(WriteZip(&buf, files), ShouldBeNil)

		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		So(err, ShouldBeNil)
		So(zr.File, ShouldHaveLength, 2)
		So(zr.File[0].Name, ShouldEqual, "index.qmd")

		rc, err := zr.File[1].Open()
		So(err, ShouldBeNil)
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		So(string(data), ShouldEqual, "requests\n")
	})
}
