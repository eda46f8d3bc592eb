// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// storedFile is the on-disk format: metadata beside a gzip-compressed,
// gob-encoded Tables payload, verified by SHA-256 on load.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Save writes the tables to path. Metadata is derived from the tables; the
// checksum covers the uncompressed gob payload. The write goes through a
// temp file and rename so readers never observe a partial artifact.
func Save(path string, tables Tables) (*Metadata, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(tables); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	rawData := buf.Bytes()

	hash := sha256.Sum256(rawData)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(rawData); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	meta := Metadata{
		FormatVersion: FormatVersion,
		Checksum:      hex.EncodeToString(hash[:]),
		TrainedAt:     tables.TrainedAt,
		SavedAt:       time.Now(),
		Dim:           tables.Dim,
		UserCount:     len(tables.Users),
		ItemCount:     len(tables.Items),
		TraitCount:    len(tables.Traits),
		SizeBytes:     int64(compressed.Len()),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}

	fileEnc := gob.NewEncoder(f)
	if err := fileEnc.Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("close artifact file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("replace artifact file: %w", err)
	}

	return &meta, nil
}

// Load reads, verifies, and validates an artifact from path. Any missing
// table, checksum mismatch, or unsupported format version fails the load;
// there is no silent fallback to random weights.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open artifact file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	fileDec := gob.NewDecoder(f)
	if err := fileDec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("read artifact file: %w", err)
	}

	if sf.Metadata.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d, want %d", sf.Metadata.FormatVersion, FormatVersion)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	rawData, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed artifact: %w", err)
	}

	hash := sha256.Sum256(rawData)
	checksum := hex.EncodeToString(hash[:])
	if checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("artifact checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	var tables Tables
	dec := gob.NewDecoder(bytes.NewReader(rawData))
	if err := dec.Decode(&tables); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	return New(tables, sf.Metadata)
}

// ReadMetadata reads only the metadata header from an artifact file without
// decompressing or validating the payload.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open artifact file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("read artifact file: %w", err)
	}
	return &sf.Metadata, nil
}
