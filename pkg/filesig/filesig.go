// Package filesig verifies that an uploaded file's declared name agrees with
// its actual content. The claimed extension must match a magic-byte signature
// found in the file header, and the extension's canonical MIME type must be
// on the configured allow-list.
package filesig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// HeaderSize is the number of leading bytes needed for signature matching.
const HeaderSize = 32

// FileTooLarge reports an upload exceeding the configured size limit.
type FileTooLarge struct {
	Limit  int64 `json:"limit"`
	Actual int64 `json:"actual"`
}

func (e *FileTooLarge) Error() string {
	return fmt.Sprintf("file too large: %d bytes (limit %d)", e.Actual, e.Limit)
}

// ErrUnsupportedFileType is returned when the claimed extension does not
// agree with the detected content type, or the resolved MIME type is not
// allowed.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// signature maps a magic-byte pattern at a fixed offset to the canonical
// extensions it may legitimately carry.
type signature struct {
	offset     int
	pattern    []byte
	extensions []string
}

var signatures = []signature{
	{0, []byte("%PDF-"), []string{"pdf"}},
	{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []string{"png"}},
	{0, []byte{0xFF, 0xD8, 0xFF}, []string{"jpg", "jpeg"}},
	{0, []byte("GIF87a"), []string{"gif"}},
	{0, []byte("GIF89a"), []string{"gif"}},
	// Office Open XML documents are ZIP containers, so the ZIP signature
	// legitimately covers docx and xlsx as well.
	{0, []byte{'P', 'K', 0x03, 0x04}, []string{"zip", "docx", "xlsx"}},
	{0, []byte{'P', 'K', 0x05, 0x06}, []string{"zip"}},
	{4, []byte("ftyp"), []string{"mp4"}},
	{0, []byte("RIFF"), []string{"webp", "wav"}},
}

// extensionMIME resolves a canonical extension to its MIME type.
var extensionMIME = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"zip":  "application/zip",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"mp4":  "video/mp4",
	"webp": "image/webp",
	"wav":  "audio/wav",
}

// Extension derives the claimed extension from a file name: lower-cased,
// without the leading dot, empty when absent.
func Extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// AllowList builds the lookup set used by Validate from configured MIME
// type strings.
func AllowList(mimes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(mimes))
	for _, m := range mimes {
		set[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return set
}

// Validate checks an upload's declared name against its magic-byte header.
//
// The file is accepted only when some signature matching the header lists
// the claimed extension and that extension's MIME type is allowed. A file
// whose bytes match a known type under a different name is rejected: the
// declared name is the contract with the user, not the content.
func Validate(name string, size int64, header []byte, allow map[string]struct{}, maxSize int64) error {
	if maxSize > 0 && size > maxSize {
		return &FileTooLarge{Limit: maxSize, Actual: size}
	}
	claimed := Extension(name)
	if claimed == "" {
		return ErrUnsupportedFileType
	}
	for _, sig := range signatures {
		if !sig.matches(header) {
			continue
		}
		for _, ext := range sig.extensions {
			if ext != claimed {
				continue
			}
			mime, ok := extensionMIME[ext]
			if !ok {
				continue
			}
			if _, allowed := allow[mime]; allowed {
				return nil
			}
		}
	}
	return ErrUnsupportedFileType
}

func (s signature) matches(header []byte) bool {
	end := s.offset + len(s.pattern)
	if len(header) < end {
		return false
	}
	return bytes.Equal(header[s.offset:end], s.pattern)
}

// ReadHeader reads up to HeaderSize bytes from r and rewinds it to its
// original offset, leaving the full content available for storage.
func ReadHeader(r io.ReadSeeker) ([]byte, error) {
	origin, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("record stream offset: %w", err)
	}
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read file header: %w", err)
	}
	if _, err := r.Seek(origin, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload stream: %w", err)
	}
	return header[:n], nil
}

// MIMEFor returns the canonical MIME type for the claimed extension of name,
// falling back to application/octet-stream.
func MIMEFor(name string) string {
	if mime, ok := extensionMIME[Extension(name)]; ok {
		return mime
	}
	return "application/octet-stream"
}
