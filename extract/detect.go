package extract

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// srcEncoding is the BOM detected encoding of a source document. XML declared
// encodings are handled later by the parser, BOMs have to be dealt with before
// the bytes reach it.
type srcEncoding int

const (
	encUnknown srcEncoding = iota
	encUTF8
	encUTF16BigEndian
	encUTF16LittleEndian
	encUTF32BigEndian
	encUTF32LittleEndian
)

// detectUTF sniffs a byte order mark. Needs at least 4 bytes to tell UTF-16LE
// and UTF-32LE apart.
func detectUTF(buf []byte) srcEncoding {
	switch {
	case len(buf) >= 4 && buf[0] == 0x00 && buf[1] == 0x00 && buf[2] == 0xFE && buf[3] == 0xFF:
		return encUTF32BigEndian
	case len(buf) >= 4 && buf[0] == 0xFF && buf[1] == 0xFE && buf[2] == 0x00 && buf[3] == 0x00:
		return encUTF32LittleEndian
	case len(buf) >= 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF:
		return encUTF8
	case len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF:
		return encUTF16BigEndian
	case len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xFE:
		return encUTF16LittleEndian
	default:
		return encUnknown
	}
}

// selectReader wraps the reader with a decoder when a BOM was detected,
// otherwise bytes pass through untouched.
func selectReader(r io.Reader, enc srcEncoding) io.Reader {
	switch enc {
	case encUTF8:
		return unicode.UTF8BOM.NewDecoder().Reader(r)
	case encUTF16BigEndian:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Reader(r)
	case encUTF16LittleEndian:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Reader(r)
	case encUTF32BigEndian:
		return utf32.UTF32(utf32.BigEndian, utf32.UseBOM).NewDecoder().Reader(r)
	case encUTF32LittleEndian:
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM).NewDecoder().Reader(r)
	default:
		return r
	}
}

// isArchiveFile reports whether path is a zip archive, checking extension
// first and then content magic.
func isArchiveFile(path string) (bool, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return filetype.IsType(head[:n], matchers.TypeZip), nil
}

// isInvoiceFile reports whether path looks like a CFDI XML document and which
// BOM it carries.
func isInvoiceFile(path string) (bool, srcEncoding, error) {
	if !strings.EqualFold(filepath.Ext(path), ".xml") {
		return false, encUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, encUnknown, err
	}
	defer f.Close()

	head := make([]byte, 64)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, encUnknown, err
	}
	return looksLikeXML(head[:n]), detectUTF(head[:n]), nil
}

// isInvoiceInArchive performs the same checks for a zip member.
func isInvoiceInArchive(f *zip.File) (bool, srcEncoding, error) {
	if !strings.EqualFold(filepath.Ext(f.FileHeader.Name), ".xml") {
		return false, encUnknown, nil
	}

	r, err := f.Open()
	if err != nil {
		return false, encUnknown, err
	}
	defer r.Close()

	head := make([]byte, 64)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, encUnknown, err
	}
	return looksLikeXML(head[:n]), detectUTF(head[:n]), nil
}

// looksLikeXML accepts anything whose first meaningful byte is an opening
// angle bracket, in any of the encodings we handle. Full well-formedness is
// the parser's business.
func looksLikeXML(head []byte) bool {
	enc := detectUTF(head)
	decoded, err := io.ReadAll(selectReader(bytes.NewReader(head), enc))
	if err != nil {
		// undecodable garbage cannot be an invoice
		return false
	}
	for _, b := range decoded {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '<':
			return true
		default:
			return false
		}
	}
	return false
}
