package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrLengthMismatch is returned while sending a multipart body whose parts
// did not produce the precomputed number of bytes.
var ErrLengthMismatch = errors.New("query: multipart body length mismatch")

const boundaryPrefix = "-----------------------------"

// sniffLen is how much of a reader is buffered for content type detection.
const sniffLen = 3072

func newBoundary() string {
	return boundaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type multipartBody struct {
	body        io.Reader
	length      int64
	contentType string
}

// encodeMultipart lays out fields then files in declaration order and
// returns a reader producing exactly length bytes.
func encodeMultipart(boundary string, fields []FieldPart, files []FilePart) (*multipartBody, error) {
	var (
		readers []io.Reader
		length  int64
	)
	add := func(s string) {
		readers = append(readers, strings.NewReader(s))
		length += int64(len(s))
	}

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("multipart field without a name")
		}
		add("--" + boundary + "\r\n" +
			`Content-Disposition: form-data; name="` + escapeQuotes(f.Name) + "\"\r\n\r\n" +
			f.Value + "\r\n")
	}

	for _, f := range files {
		if f.Field == "" {
			return nil, fmt.Errorf("multipart file without a field name")
		}
		content, size, contentType, err := f.open()
		if err != nil {
			return nil, fmt.Errorf("multipart file %q: %w", f.FileName, err)
		}
		add("--" + boundary + "\r\n" +
			`Content-Disposition: form-data; name="` + escapeQuotes(f.Field) +
			`"; filename="` + escapeQuotes(f.FileName) + "\"\r\n" +
			"Content-Type: " + contentType + "\r\n\r\n")
		readers = append(readers, content)
		length += size
		add("\r\n")
	}
	add("--" + boundary + "--\r\n")

	return &multipartBody{
		body:        &lengthCheckedReader{r: io.MultiReader(readers...), want: length},
		length:      length,
		contentType: "multipart/form-data; boundary=" + boundary,
	}, nil
}

// open returns the content reader, its exact size and its content type.
func (f FilePart) open() (io.Reader, int64, string, error) {
	if f.Data != nil || f.Reader == nil {
		ct := f.ContentType
		if ct == "" {
			ct = mimetype.Detect(f.Data).String()
		}
		return bytes.NewReader(f.Data), int64(len(f.Data)), ct, nil
	}

	r, size := f.Reader, f.Size
	if size <= 0 {
		if s, ok := r.(io.Seeker); ok {
			cur, err := s.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, 0, "", err
			}
			end, err := s.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, 0, "", err
			}
			if _, err := s.Seek(cur, io.SeekStart); err != nil {
				return nil, 0, "", err
			}
			size = end - cur
		} else {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, 0, "", err
			}
			return FilePart{Data: data, ContentType: f.ContentType}.open()
		}
	}

	ct := f.ContentType
	if ct != "" {
		return r, size, ct, nil
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, 0, "", err
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), r), size, mimetype.Detect(head).String(), nil
}

type lengthCheckedReader struct {
	r    io.Reader
	want int64
	n    int64
}

func (l *lengthCheckedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.want {
		return n, ErrLengthMismatch
	}
	if errors.Is(err, io.EOF) && l.n != l.want {
		return n, ErrLengthMismatch
	}
	return n, err
}

// escapeQuotes escapes characters that would end a quoted header value.
func escapeQuotes(s string) string {
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
