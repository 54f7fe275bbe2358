// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Bundle writes a zstd-compressed tarball of the output directory to
// destination. Entry names are relative to the output directory so the
// bundle unpacks into a bare run directory. The destination must live
// outside the bundled directory.
func Bundle(dir, destination string) (err error) {
	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("creating bundle %s: %w", destination, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing bundle: %w", closeErr)
		}
	}()

	compressor, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	archive := tar.NewWriter(compressor)

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name:    filepath.ToSlash(relative),
			Mode:    0o644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := archive.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", relative, err)
		}
		source, err := os.Open(path)
		if err != nil {
			return err
		}
		defer source.Close()
		if _, err := io.Copy(archive, source); err != nil {
			return fmt.Errorf("archiving %s: %w", relative, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("bundling %s: %w", dir, walkErr)
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("finalizing zstd stream: %w", err)
	}
	return nil
}

// Unbundle extracts a bundle produced by Bundle into dir. Paths
// escaping dir are rejected.
func Unbundle(source, dir string) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening bundle %s: %w", source, err)
	}
	defer file.Close()

	decompressor, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer decompressor.Close()

	archive := tar.NewReader(decompressor)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(header.Name))
		relative, err := filepath.Rel(dir, target)
		if err != nil || relative == ".." || filepath.IsAbs(relative) ||
			len(relative) >= 3 && relative[:3] == ".."+string(filepath.Separator) {
			return fmt.Errorf("bundle entry %q escapes extraction directory", header.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		destination, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(destination, archive); err != nil {
			destination.Close()
			return fmt.Errorf("extracting %s: %w", header.Name, err)
		}
		if err := destination.Close(); err != nil {
			return err
		}
	}
}
