// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package compr provides a unified interface wrapping third-party
// stream compression libraries, used to wrap the tab-separated text of
// a packet into its on-disk compressed form.
package compr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec names a compression algorithm and knows how to wrap/unwrap a
// byte stream for it. Obtain one with Get.
type Codec interface {
	// Name is the algorithm name. It never appears on disk (packet
	// file names carry only the fixed ".gz" suffix) but is used to
	// select a Codec from configuration.
	Name() string
	// NewWriter wraps w so that bytes written to the result are
	// compressed into w. Callers must Close the returned writer to
	// flush the trailing frame.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader wraps r so that bytes read from the result are the
	// decompressed contents of r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Default is the codec used when none is configured. It produces and
// consumes the gzip framing the ".tsv.gz" wire format requires.
const Default = "gzip"

// Get selects a Codec by name, returning nil for an unrecognized one.
func Get(name string) Codec {
	switch name {
	case "", Default:
		return gzipCodec{}
	case "s2":
		return s2Codec{}
	case "zstd":
		return zstdCodec{}
	default:
		return nil
	}
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, gzip.BestSpeed)
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}

func (s2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// Compress returns the compressed form of src using the named codec.
func Compress(name string, src []byte) ([]byte, error) {
	c := Get(name)
	if c == nil {
		return nil, fmt.Errorf("compr: unknown codec %q", name)
	}
	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress returns the decompressed form of src using the named codec.
func Decompress(name string, src []byte) ([]byte, error) {
	c := Get(name)
	if c == nil {
		return nil, fmt.Errorf("compr: unknown codec %q", name)
	}
	r, err := c.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
