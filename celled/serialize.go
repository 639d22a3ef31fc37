/*
	This file supports serialization/deserialization and compression of data.
*/

package celled

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
)

// Compression is the format of compression for storing data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = 0
	Snappy                   = 1 << iota
	Gzip
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "No compression"
	case Snappy:
		return "Go Snappy compression"
	case Gzip:
		return "Gzip compression"
	default:
		return "Unknown compression"
	}
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = 0
	CRC32               = 1 << iota
)

func (checksum Checksum) String() string {
	switch checksum {
	case NoChecksum:
		return "No checksum"
	case CRC32:
		return "CRC32 checksum"
	default:
		return "Unknown checksum"
	}
}

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

func DecodeSerializationFormat(s SerializationFormat) (compress Compression, checksum Checksum) {
	compress = Compression(uint8(s) >> 5)
	checksum = Checksum((uint8(s) >> 3) & 0x03)
	return
}

// SerializeData serializes a slice of bytes using optional compression, checksum.
func SerializeData(data []byte, compress Compression, checksum Checksum) (s []byte, err error) {
	var buffer bytes.Buffer

	// Store the requested compression and checksum.
	format := EncodeSerializationFormat(compress, checksum)
	if err = binary.Write(&buffer, binary.LittleEndian, format); err != nil {
		return
	}

	// Handle compression if requested.
	var byteData []byte
	switch compress {
	case Uncompressed:
		byteData = data
	case Snappy:
		byteData = snappy.Encode(nil, data)
	case Gzip:
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err = gw.Write(data); err != nil {
			return
		}
		if err = gw.Close(); err != nil {
			return
		}
		byteData = gzBuf.Bytes()
	default:
		err = fmt.Errorf("illegal compression (%s) during serialization", compress)
		return
	}

	// Handle checksum if requested.
	switch checksum {
	case NoChecksum:
	case CRC32:
		crcChecksum := crc32.ChecksumIEEE(byteData)
		if err = binary.Write(&buffer, binary.LittleEndian, crcChecksum); err != nil {
			return
		}
	default:
		err = fmt.Errorf("illegal checksum (%s) in serialize.SerializeData()", checksum)
		return
	}
	if _, err = buffer.Write(byteData); err != nil {
		return
	}
	return buffer.Bytes(), nil
}

// DeserializeData returns a slice of bytes from a serialized value, verifying
// any stored checksum before decompression.
func DeserializeData(s []byte) (data []byte, err error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("cannot deserialize zero length slice")
	}
	buffer := bytes.NewBuffer(s)

	var format SerializationFormat
	if err = binary.Read(buffer, binary.LittleEndian, &format); err != nil {
		return
	}
	compress, checksum := DecodeSerializationFormat(format)

	var storedCrc32 uint32
	switch checksum {
	case NoChecksum:
	case CRC32:
		if err = binary.Read(buffer, binary.LittleEndian, &storedCrc32); err != nil {
			return
		}
	default:
		err = fmt.Errorf("illegal checksum in deserializing data")
		return
	}

	cdata := buffer.Bytes()
	if checksum == CRC32 {
		if crc32.ChecksumIEEE(cdata) != storedCrc32 {
			err = fmt.Errorf("bad checksum on deserializing %d bytes", len(s))
			return
		}
	}

	switch compress {
	case Uncompressed:
		data = cdata
	case Snappy:
		if data, err = snappy.Decode(nil, cdata); err != nil {
			return
		}
	case Gzip:
		var gr *gzip.Reader
		if gr, err = gzip.NewReader(bytes.NewReader(cdata)); err != nil {
			return
		}
		if data, err = io.ReadAll(gr); err != nil {
			return
		}
		if err = gr.Close(); err != nil {
			return
		}
	default:
		err = fmt.Errorf("illegal compression format (%d) in deserialization", compress)
	}
	return
}
