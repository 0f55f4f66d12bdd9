// ABOUTME: Newline-delimited JSON encoding of a lazily produced sequence.
// ABOUTME: Upstream failures become one trailing {"error": ...} line instead of a broken body.

// Package ndjson writes sequences as newline-delimited JSON.
package ndjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
)

// ContentType is the media type of an NDJSON body.
const ContentType = "application/x-ndjson"

// errorLine is the trailing line written when the sequence fails.
type errorLine struct {
	Error string `json:"error"`
}

// Encode writes one JSON line per item of seq, flushing after every line
// when w is an http.Flusher. HTML characters and non-ASCII text are written
// as is.
//
// If seq yields an error, an item fails to marshal, or seq panics, Encode
// writes a single {"error": "..."} line and stops. The returned error is
// only set when writing to w fails; lines counts every line written,
// including a trailing error line.
func Encode[T any](w io.Writer, seq iter.Seq2[T, error]) (lines int, err error) {
	flusher, _ := w.(http.Flusher)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	write := func() error {
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
		lines++
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	var writeErr error
	fail := func(cause error) {
		buf.Reset()
		if err := enc.Encode(errorLine{Error: cause.Error()}); err != nil {
			return
		}
		writeErr = write()
	}

	func() {
		defer func() {
			if r := recover(); r != nil && writeErr == nil {
				fail(fmt.Errorf("%v", r))
			}
		}()

		for item, itemErr := range seq {
			if itemErr != nil {
				fail(itemErr)
				return
			}

			buf.Reset()
			if err := enc.Encode(item); err != nil {
				fail(err)
				return
			}
			if writeErr = write(); writeErr != nil {
				return
			}
		}
	}()

	return lines, writeErr
}
