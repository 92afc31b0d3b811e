// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package compressor implements the heuristic GZIP Compression Filter
// from spec.md §4.4: extension hints, entropy sampling, binary-content
// detection, and trial compression, producing a (bytes, compressed?)
// pair. Built on klauspost/compress/gzip rather than stdlib compress/gzip
// — same container format, faster implementation, the library the
// teacher's own go.mod already pulls in for this concern.
package compressor

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// sampleSize is the prefix length examined for entropy/binary sampling
// and trial compression (spec.md §4.4: "first 4 KiB").
const sampleSize = 4096

// entropyThreshold and binaryFraction implement "binary-like" and the
// entropy gate exactly as spec.md §4.4 defines them.
const (
	entropyThreshold = 7.5
	binaryFraction   = 0.10
	trialRatioGate   = 0.85
)

// gzipMagic identifies a compressed payload on receipt (spec.md §4.4).
var gzipMagic = []byte{0x1F, 0x8B}

var alreadyCompressedExt = map[string]bool{
	".zip": true, ".gz": true, ".jpg": true, ".jpeg": true, ".png": true,
	".mp4": true, ".mp3": true, ".pdf": true, ".docx": true, ".xlsx": true,
	".pptx": true, ".7z": true, ".rar": true, ".bz2": true, ".xz": true,
	".webp": true, ".webm": true, ".mov": true, ".avi": true,
}

var textExt = map[string]bool{
	".txt": true, ".json": true, ".csv": true, ".md": true, ".xml": true,
	".html": true, ".htm": true, ".yaml": true, ".yml": true, ".log": true,
	".go": true, ".java": true, ".c": true, ".h": true, ".cpp": true,
	".ini": true, ".conf": true, ".toml": true,
}

// CompressIfBeneficial applies spec.md §4.4's decision tree to data,
// named as if it were filename (only the extension is consulted).
func CompressIfBeneficial(filename string, data []byte) (out []byte, compressed bool) {
	ext := strings.ToLower(filepath.Ext(filename))

	if alreadyCompressedExt[ext] {
		return data, false
	}

	sample := data
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	binaryLike := isBinaryLike(sample)

	if textExt[ext] && !binaryLike {
		return gzipIfSmaller(data)
	}

	entropy := shannonEntropy(sample)
	if binaryLike && entropy > entropyThreshold {
		return data, false
	}

	trial, err := gzipBytes(sample)
	if err == nil && len(sample) > 0 {
		ratio := float64(len(trial)) / float64(len(sample))
		if ratio < trialRatioGate {
			return gzipIfSmaller(data)
		}
	}
	return data, false
}

func gzipIfSmaller(data []byte) ([]byte, bool) {
	compressed, err := gzipBytes(data)
	if err != nil || len(compressed) >= len(data) {
		return data, false
	}
	return compressed, true
}

// Compress unconditionally GZIPs data, regardless of size or content —
// used for the manifest exchange (spec.md §4.5 step 3, §4.6's
// MANIFEST_REQ handler), which always GZIP-compresses its JSON payload
// rather than running it through CompressIfBeneficial's heuristics.
func Compress(data []byte) ([]byte, error) {
	return gzipBytes(data)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "compressor: gzip write")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressor: gzip close")
	}
	return buf.Bytes(), nil
}

// Decompress reverses CompressIfBeneficial's gzip branch.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "compressor: gzip reader")
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "compressor: gzip read")
	}
	return buf.Bytes(), nil
}

// IsGzip reports whether data begins with the GZIP magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && bytes.Equal(data[:2], gzipMagic)
}

func isBinaryLike(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	var suspicious int
	for _, b := range sample {
		if b == 0x00 || b == 0x7F || (b < 0x20 && b != '\t' && b != '\n' && b != '\r') {
			suspicious++
		}
	}
	return float64(suspicious)/float64(len(sample)) > binaryFraction
}

func shannonEntropy(sample []byte) float64 {
	if len(sample) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range sample {
		counts[b]++
	}
	entropy := 0.0
	n := float64(len(sample))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
