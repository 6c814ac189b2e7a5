// SPDX-License-Identifier: AGPL-3.0-only
package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

// FilePart is one binary field of a multipart request. Ext includes the dot.
type FilePart struct {
	Field    string
	Data     []byte
	MimeType string
	Ext      string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// encodeMultipart writes files first, then text fields in key order. Each
// file is named after the millisecond timestamp at encoding time.
func encodeMultipart(fields map[string]string, files []FilePart, now time.Time) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := fmt.Sprintf("%d", now.UnixMilli())

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Field), escapeQuotes(filename+f.Ext)))
		mimeType := f.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		h.Set("Content-Type", mimeType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(k)))
		h.Set("Content-Type", "text/plain; charset=utf-8")

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create text part: %w", err)
		}
		if _, err := part.Write([]byte(fields[k])); err != nil {
			return nil, "", fmt.Errorf("write text part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
