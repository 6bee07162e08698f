package zim

import "io"

// readMimeList reads the zero-terminated-string sequence at offset, stopping
// at the first empty string (the list terminator).
func readMimeList(r io.ReaderAt, offset uint64) ([]string, error) {
	var mimes []string
	pos := int64(offset)
	for {
		s, next, err := readCStringAt(r, pos)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return mimes, nil
		}
		mimes = append(mimes, s)
		pos = next
	}
}

// mimeTypeFor resolves a MIME id to its string. Valid ids lie in
// [0, len(mimes)); anything else means a corrupt or foreign directory entry.
func mimeTypeFor(mimes []string, id uint16) (string, error) {
	if int(id) >= len(mimes) {
		return "", ErrMimeIDOutOfRange
	}
	return mimes[id], nil
}
