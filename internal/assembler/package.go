package assembler

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capsuleforge/core/internal/domain"
)

// Format is an on-disk packaging format for a Capsule, per spec.md §6's
// reproducibility requirement: identical Capsule content always produces
// byte-identical archive bytes.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
)

// epoch is the fixed modification time every packaged file carries, so
// packaging the same Capsule twice never differs by a timestamp.
var epoch = time.Unix(0, 0).UTC()

// capsuleFiles lays a Capsule out as the directory tree spec.md §6
// describes: the source mapping verbatim, the test mapping under tests/,
// plus capsule.yaml, README.md, and validation.json.
func capsuleFiles(c *domain.Capsule) (map[string][]byte, error) {
	files := make(map[string][]byte)

	for name, content := range c.SourceCode {
		files[name] = []byte(content)
	}
	for name, content := range c.Tests {
		files["tests/"+name] = []byte(content)
	}

	manifestYAML, err := yaml.Marshal(c.Manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal capsule.yaml: %w", err)
	}
	files["capsule.yaml"] = manifestYAML
	files["README.md"] = []byte(c.Documentation)

	if c.Validation != nil {
		validationJSON, err := json.MarshalIndent(c.Validation, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal validation.json: %w", err)
		}
		files["validation.json"] = validationJSON
	}

	return files, nil
}

// Package serializes a Capsule into format's archive bytes.
func Package(format Format, c *domain.Capsule) ([]byte, error) {
	files, err := capsuleFiles(c)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	switch format {
	case FormatZip:
		return packageZip(names, files)
	case FormatTar:
		return packageTar(names, files)
	case FormatTarGz:
		return packageTarGz(names, files)
	default:
		return nil, fmt.Errorf("assembler: unknown package format %q", format)
	}
}

func packageZip(names []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: epoch}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func packageTar(names []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	if err := writeTarEntries(w, names, files); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func packageTarGz(names []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.ModTime = epoch
	tw := tar.NewWriter(gz)
	if err := writeTarEntries(tw, names, files); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTarEntries(w *tar.Writer, names []string, files map[string][]byte) error {
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: epoch,
		}
		if err := w.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := w.Write(content); err != nil {
			return err
		}
	}
	return nil
}
