package model

import "bytes"

// SplitContent splits a raw message into its header section (including the
// blank separator line) and body. The split is purely positional so that
// header and body concatenate back to the original bytes. A message without
// a separator line is treated as headers only.
func SplitContent(raw []byte) (headers, body []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+4], raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+2], raw[i+2:]
	}
	return raw, nil
}
