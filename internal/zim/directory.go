package zim

import "encoding/binary"

// Entry is a tagged union over the two directory-entry variants: an Article
// (has ClusterNum/BlobNum) or a Redirect (has RedirectIndex).
type Entry struct {
	Index      uint32
	MimeType   uint16
	ParamLen   uint8
	Namespace  byte
	Revision   uint32
	IsRedirect bool

	// Article fields, valid when !IsRedirect.
	ClusterNum uint32
	BlobNum    uint32

	// Redirect field, valid when IsRedirect.
	RedirectIndex uint32

	URL   string
	Title string
}

// DisplayTitle returns Title, falling back to URL when Title is empty.
func (e *Entry) DisplayTitle() string {
	if e.Title == "" {
		return e.URL
	}
	return e.Title
}

// ReadEntry resolves entry index idx via the URL pointer table and parses the
// directory record it points to.
func (a *Archive) ReadEntry(idx uint32) (*Entry, error) {
	if idx >= a.header.ArticleCount {
		return nil, ErrEntryNotFound
	}
	return a.ReadEntryAt(a.urlPtrs[idx], idx)
}

// ReadEntryAt parses the directory record at the given absolute byte offset.
// index is attached to the returned Entry for callers that already know it
// (e.g. ReadEntry); pass any value when the index is unknown to the caller.
func (a *Archive) ReadEntryAt(offset uint64, index uint32) (*Entry, error) {
	pos := int64(offset)

	var fixed [8]byte // mimetype(2) + paramLen(1) + namespace(1) + revision(4)
	if err := readFullAt(a.file, fixed[:], pos); err != nil {
		return nil, err
	}
	pos += int64(len(fixed))

	e := &Entry{
		Index:     index,
		MimeType:  binary.LittleEndian.Uint16(fixed[0:2]),
		ParamLen:  fixed[2],
		Namespace: fixed[3],
		Revision:  binary.LittleEndian.Uint32(fixed[4:8]),
	}

	if e.MimeType == redirectMimeType {
		e.IsRedirect = true
		var buf [4]byte
		if err := readFullAt(a.file, buf[:], pos); err != nil {
			return nil, err
		}
		e.RedirectIndex = binary.LittleEndian.Uint32(buf[:])
		pos += int64(len(buf))
	} else {
		var buf [8]byte
		if err := readFullAt(a.file, buf[:], pos); err != nil {
			return nil, err
		}
		e.ClusterNum = binary.LittleEndian.Uint32(buf[0:4])
		e.BlobNum = binary.LittleEndian.Uint32(buf[4:8])
		pos += int64(len(buf))
	}

	url, pos, err := readCStringAt(a.file, pos)
	if err != nil {
		return nil, err
	}
	e.URL = url

	title, _, err := readCStringAt(a.file, pos)
	if err != nil {
		return nil, err
	}
	e.Title = title

	return e, nil
}
