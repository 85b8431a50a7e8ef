package vision

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// encodePNG writes the slice as a truecolor-with-alpha PNG. The chunk
// layout is produced by hand so the scanline stream can go through
// klauspost's zlib, which is considerably faster than the standard
// deflate on large viewports.
func encodePNG(s ImageSlice) ([]byte, error) {
	var out bytes.Buffer
	out.Write(pngSignature)

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(s.width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(s.height))
	ihdr[8] = 8  // bit depth
	ihdr[9] = 6  // color type: RGBA
	ihdr[10] = 0 // compression
	ihdr[11] = 0 // filter
	ihdr[12] = 0 // interlace
	writeChunk(&out, "IHDR", ihdr)

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("png: init deflate: %w", err)
	}
	filter := []byte{0}
	for y := 0; y < s.height; y++ {
		row := s.buf[s.offset+y*s.stride : s.offset+y*s.stride+4*s.width]
		if _, err := zw.Write(filter); err != nil {
			return nil, fmt.Errorf("png: write scanline: %w", err)
		}
		if _, err := zw.Write(row); err != nil {
			return nil, fmt.Errorf("png: write scanline: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("png: close deflate: %w", err)
	}
	writeChunk(&out, "IDAT", idat.Bytes())

	writeChunk(&out, "IEND", nil)
	return out.Bytes(), nil
}

func writeChunk(out *bytes.Buffer, kind string, data []byte) {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(data)))
	copy(header[4:8], kind)
	out.Write(header[:])
	out.Write(data)

	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	out.Write(sum[:])
}
