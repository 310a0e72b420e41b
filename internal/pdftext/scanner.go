// Package pdftext pulls text out of PDF files without a full PDF parser.
//
// It scans the raw bytes for indirect objects, follows the content streams
// of page objects and decodes the literal strings shown inside text
// objects. Fonts, encodings and layout are ignored. Malformed files degrade
// to a single scan over every stream in the file instead of failing.
package pdftext

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"sort"
	"strconv"
)

var (
	objectRe      = regexp.MustCompile(`(?s)(\d+)\s+(\d+)\s+obj\b(.*?)\bendobj`)
	pageTypeRe    = regexp.MustCompile(`/Type\s*/Page\b`)
	contentsRefRe = regexp.MustCompile(`/Contents\s*(\d+)\s+\d+\s+R`)
	contentsArrRe = regexp.MustCompile(`(?s)/Contents\s*\[(.*?)\]`)
	indirectRefRe = regexp.MustCompile(`(\d+)\s+\d+\s+R`)
	streamRe      = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\n?endstream`)
)

// ScanObjects maps indirect object ids to their bodies. Cross-reference
// tables and trailers are not consulted. When an id is defined more than
// once, as happens with incremental updates, the last definition wins.
func ScanObjects(raw []byte) map[int][]byte {
	objects := make(map[int][]byte)
	for _, m := range objectRe.FindAllSubmatch(raw, -1) {
		id, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		objects[id] = m[3]
	}
	return objects
}

// PageObjectIDs returns the ids of all page objects in ascending order.
// Object ids only approximate page order; the page tree is not walked.
func PageObjectIDs(objects map[int][]byte) []int {
	var ids []int
	for id, body := range objects {
		if pageTypeRe.Match(body) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// ContentRefs returns the object ids referenced by a page's /Contents
// entry, which is either a single reference or an array of references.
func ContentRefs(pageBody []byte) []int {
	if m := contentsRefRe.FindSubmatch(pageBody); m != nil {
		if id, err := strconv.Atoi(string(m[1])); err == nil {
			return []int{id}
		}
	}
	m := contentsArrRe.FindSubmatch(pageBody)
	if m == nil {
		return nil
	}
	var ids []int
	for _, ref := range indirectRefRe.FindAllSubmatch(m[1], -1) {
		if id, err := strconv.Atoi(string(ref[1])); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// StreamPayload returns the stream data of an object body. Compressed
// streams are inflated; data that does not inflate is returned unchanged.
// The second result is false when the body holds no stream.
func StreamPayload(body []byte) ([]byte, bool) {
	m := streamRe.FindSubmatch(body)
	if m == nil {
		return nil, false
	}
	return inflateOrRaw(m[1]), true
}

func allStreamPayloads(raw []byte) [][]byte {
	var payloads [][]byte
	for _, m := range streamRe.FindAllSubmatch(raw, -1) {
		payloads = append(payloads, inflateOrRaw(m[1]))
	}
	return payloads
}

func inflateOrRaw(data []byte) []byte {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer r.Close()
	// A damaged checksum or truncated tail still yields the text inflated
	// so far.
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return data
	}
	return out
}
