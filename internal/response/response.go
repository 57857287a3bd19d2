// Package response holds the normalized result of an action step.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Response is the envelope every action step produces. Only the fields the
// action fills are set; the rest stay nil.
type Response struct {
	StatusCode   *int
	Headers      map[string]string
	BodyRaw      []byte
	BodyJSON     any
	Rows         []map[string]any
	AffectedRows *int64
}

func FromHTTP(status int, headers map[string]string, body []byte) *Response {
	r := &Response{StatusCode: &status, Headers: headers, BodyRaw: body}
	if v, ok := decodeJSON(body); ok {
		r.BodyJSON = v
	}
	return r
}

func FromRows(rows []map[string]any) *Response {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Response{Rows: rows}
}

func FromAffected(n int64) *Response {
	return &Response{AffectedRows: &n}
}

// FromText wraps text read from a page (element text, title, URL).
func FromText(text string) *Response {
	return &Response{BodyRaw: []byte(text)}
}

// Header looks a header up case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (r *Response) IsJSON() bool {
	return len(bytes.TrimSpace(r.jsonBytes())) > 0 && json.Valid(r.jsonBytes())
}

func (r *Response) jsonBytes() []byte {
	if len(r.BodyRaw) > 0 {
		return r.BodyRaw
	}
	if r.BodyJSON != nil {
		b, err := json.Marshal(r.BodyJSON)
		if err == nil {
			return b
		}
	}
	return nil
}

// Lookup finds the value at a dot-delimited path in the JSON body. Numeric
// segments index arrays. found is false when the path does not exist.
func (r *Response) Lookup(path string) (value any, found bool, err error) {
	body := r.jsonBytes()
	if len(body) == 0 || !json.Valid(body) {
		return nil, false, fmt.Errorf("response body is not JSON")
	}
	res := gjson.GetBytes(body, gjsonPath(path))
	if !res.Exists() {
		return nil, false, nil
	}
	v, err := typed(res)
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// PathNotFoundError is returned by Capture for a path absent from the body.
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path %q not found in response", e.Path)
}

// Capture returns the value at path for storing as a variable. Strings come
// back as string, numbers as json.Number, objects and arrays as decoded JSON.
// On a query result, "row.N.column" reads column of row N.
func Capture(r *Response, path string) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("no response to capture from")
	}
	if r.Rows != nil {
		index, column, ok := rowPath(path)
		if !ok {
			return nil, fmt.Errorf("path %q must be row.N.column on a query result", path)
		}
		return CaptureRow(r, index, column)
	}
	v, found, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &PathNotFoundError{Path: path}
	}
	return v, nil
}

// CaptureRow returns a single field from the result rows.
func CaptureRow(r *Response, index int, column string) (any, error) {
	if r == nil || r.Rows == nil {
		return nil, fmt.Errorf("no query result to capture from")
	}
	if index < 0 || index >= len(r.Rows) {
		return nil, fmt.Errorf("row %d out of range, result has %d rows", index, len(r.Rows))
	}
	v, ok := Field(r.Rows[index], column)
	if !ok {
		return nil, fmt.Errorf("column %q not found in row %d", column, index)
	}
	return v, nil
}

func rowPath(path string) (int, string, bool) {
	rest, ok := strings.CutPrefix(path, "row.")
	if !ok {
		return 0, "", false
	}
	n, column, ok := strings.Cut(rest, ".")
	if !ok || column == "" {
		return 0, "", false
	}
	index, err := strconv.Atoi(n)
	if err != nil {
		return 0, "", false
	}
	return index, column, true
}

// Field reads a column from a row, falling back to a case-insensitive match
// since drivers differ in how they report column names.
func Field(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

func gjsonPath(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = gjson.Escape(p)
	}
	return strings.Join(parts, ".")
}

func typed(res gjson.Result) (any, error) {
	switch res.Type {
	case gjson.Null:
		return nil, nil
	case gjson.False, gjson.True:
		return res.Bool(), nil
	case gjson.Number:
		return json.Number(res.Raw), nil
	case gjson.String:
		return res.Str, nil
	}
	v, ok := decodeJSON([]byte(res.Raw))
	if !ok {
		return nil, fmt.Errorf("decoding %s", res.Raw)
	}
	return v, nil
}

func decodeJSON(body []byte) (any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}
