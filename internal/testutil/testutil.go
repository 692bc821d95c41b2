// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the upload fixtures used by the parser, loader
// and HTTP handler tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Upload is one file part of a multipart form.
type Upload struct {
	Field    string
	Filename string
	Content  []byte
}

// NewMultipartRequest builds a multipart/form-data request carrying the
// given form fields and file parts.
func NewMultipartRequest(t testing.TB, method, target string, fields map[string]string, uploads ...Upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	for _, u := range uploads {
		part, err := mw.CreateFormFile(u.Field, u.Filename)
		if err != nil {
			t.Fatalf("failed to create part %s: %v", u.Filename, err)
		}
		if _, err := part.Write(u.Content); err != nil {
			t.Fatalf("failed to write part %s: %v", u.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// Format16Record encodes a record in storage format 16 with gain 200 and a
// zero baseline, so a digital value d reads back as d/200 mV. samples holds
// one row per frame and one column per signal; names gives the signal
// descriptions and may contain empty strings.
func Format16Record(name string, fs float64, names []string, samples [][]int16) (hea, dat []byte) {
	var h strings.Builder
	fmt.Fprintf(&h, "%s %d %g %d\n", name, len(names), fs, len(samples))
	for i, n := range names {
		var first int16
		if len(samples) > 0 {
			first = samples[0][i]
		}
		fmt.Fprintf(&h, "%s.dat 16 200/mV 16 0 %d 0 0 %s\n", name, first, n)
	}

	buf := make([]byte, 0, 2*len(samples)*len(names))
	for _, frame := range samples {
		for _, v := range frame {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
		}
	}
	return []byte(h.String()), buf
}

// RampSamples returns n frames of nsig signals where signal k at frame i has
// the value (k+1)*i.
func RampSamples(n, nsig int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		frame := make([]int16, nsig)
		for k := range frame {
			frame[k] = int16((k + 1) * i)
		}
		out[i] = frame
	}
	return out
}
