package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	// MaxPayloadSize caps every accepted body (1 MiB).
	MaxPayloadSize = 1 << 20
	// MaxMultipartMemory is handed to ParseMultipartForm (10 MiB).
	MaxMultipartMemory = 10 << 20
)

// decodePayload turns the request body into a tree of maps keyed by field
// name.  Form-encoded keys like "address[city]" or "address.city" become
// nested maps so both encodings feed the same binding code.
func decodePayload(r *http.Request) (map[string]any, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		if r.Body == nil || r.Body == http.NoBody {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: missing content-type header", ErrUnsupportedPayload)
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}

	switch mediaType {
	case "application/json":
		return decodeJSON(r.Body)

	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxPayloadSize)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return expandValues(r.PostForm)

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxPayloadSize)
		if err := r.ParseMultipartForm(MaxMultipartMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if r.MultipartForm == nil {
			return map[string]any{}, nil
		}
		return expandValues(r.MultipartForm.Value)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPayload, mediaType)
	}
}

func decodeJSON(body io.Reader) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(body, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err)
	}
	if len(raw) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedPayload, MaxPayloadSize)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// Trailing data after the object is rejected.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedPayload)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	return out, nil
}

// expandValues nests flat form keys.  A trailing "[]" keeps every value as a
// list; otherwise the first value wins.  Keys are expanded in sorted order and
// a key used both as a value and as an object ("a=1&a[b]=2") is malformed.
func expandValues(values url.Values) (map[string]any, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(values))
	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		segs := splitKey(key)

		var v any = vals[0]
		if last := len(segs) - 1; segs[last] == "" {
			segs = segs[:last]
			list := make([]any, len(vals))
			for i, s := range vals {
				list[i] = s
			}
			v = list
		}
		if len(segs) == 0 {
			continue
		}
		if err := setPath(out, segs, v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return out, nil
}

// splitKey breaks "a[b][c]", "a.b.c", and "a[]" into path segments.
func splitKey(key string) []string {
	key = strings.ReplaceAll(key, "]", "")
	key = strings.ReplaceAll(key, "[", ".")
	return strings.Split(key, ".")
}

// setPath stores v under segs, creating intermediate maps.  It never
// overwrites: a path that is already set is an error.
func setPath(dst map[string]any, segs []string, v any) error {
	for i, s := range segs[:len(segs)-1] {
		cur, exists := dst[s]
		next, ok := cur.(map[string]any)
		if !ok {
			if exists {
				return fmt.Errorf("key %q used as both value and object", strings.Join(segs[:i+1], "."))
			}
			next = map[string]any{}
			dst[s] = next
		}
		dst = next
	}

	leaf := segs[len(segs)-1]
	if cur, exists := dst[leaf]; exists {
		if _, ok := cur.(map[string]any); ok {
			return fmt.Errorf("key %q used as both value and object", strings.Join(segs, "."))
		}
		return fmt.Errorf("key %q given more than once", strings.Join(segs, "."))
	}
	dst[leaf] = v
	return nil
}
