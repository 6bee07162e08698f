package zim

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
)

// magicNumber is the little-endian ZIM magic number.
const magicNumber = 0x44D495A

// headerSize is the fixed on-disk size of Header, in bytes.
const headerSize = 80

// redirectMimeType marks a directory entry as a redirect rather than an
// article.
const redirectMimeType = 0xFFFF

// Header is the fixed-size preamble of a ZIM archive.
type Header struct {
	MagicNumber   uint32
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          uuid.UUID
	ArticleCount  uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

func parseHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, headerSize)
	if err := readFullAt(r, buf, 0); err != nil {
		return Header{}, err
	}

	var h Header
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return Header{}, err
	}
	if h.MagicNumber != magicNumber {
		return Header{}, ErrInvalidMagic
	}
	return h, nil
}
