package orchestrator

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const defaultImageMIME = "image/png"

// SplitDataURI decodes a base64 payload that may carry a
// "data:<mime>;base64," prefix. The MIME type defaults to image/png when the
// prefix is absent or does not name one.
func SplitDataURI(s string) (data []byte, mimeType string, err error) {
	mimeType = defaultImageMIME
	payload := strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("data URI has no payload")
		}
		if m, _, _ := strings.Cut(header, ";"); m != "" {
			mimeType = m
		}
		payload = body
	} else if _, body, found := strings.Cut(payload, ","); found {
		payload = body
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
		}
	}
	return data, mimeType, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = defaultImageMIME
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
