// Package http serves the finboard JSON API.
//
// This file holds the helpers shared by handlers for reading query
// parameters and request bodies.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finboard/internal/core"
)

const (
	maxJSONBody   = 64 << 10
	maxImportBody = 10 << 20
	maxDays       = 366
	maxMonths     = 120
)

// errBodyTooLarge is returned when a request body exceeds its limit.
var errBodyTooLarge = errors.New("request body too large")

// parsePositiveInt reads an optional integer query parameter in [1, max].
// A missing parameter yields def.
func parsePositiveInt(query url.Values, key string, def, max int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, &core.ValidationError{Field: key, Value: v, Reason: fmt.Errorf("must be a whole number between 1 and %d", max)}
	}
	return n, nil
}

// requireParam returns a trimmed, non-empty query parameter.
func requireParam(query url.Values, key string) (string, error) {
	v := strings.TrimSpace(sanitizeInput(query.Get(key)))
	if v == "" {
		return "", &core.ValidationError{Field: key, Reason: errors.New("is required")}
	}
	return v, nil
}

// decodeJSON decodes a size-limited JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errBodyTooLarge
		}
		return &core.ValidationError{Field: "body", Reason: err}
	}
	return nil
}

// importBody returns the uploaded file of a multipart request, or the raw
// body otherwise. The caller closes the returned reader.
func importBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errBodyTooLarge
		}
		return nil, &core.ValidationError{Field: "file", Reason: err}
	}
	return file, nil
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}
