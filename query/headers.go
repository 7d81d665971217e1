package query

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// RestrictedHeaders are set through native request fields or canonically
// after coalescing instead of being copied verbatim.
var RestrictedHeaders = []string{
	"Accept",
	"Connection",
	"Content-Length",
	"Content-Type",
	"Expect",
	"Date",
	"Host",
	"If-Modified-Since",
	"Referer",
	"Transfer-Encoding",
	"User-Agent",
}

var restricted = func() map[string]bool {
	m := make(map[string]bool, len(RestrictedHeaders))
	for _, h := range RestrictedHeaders {
		m[h] = true
	}
	return m
}()

// IsRestricted reports whether name is a restricted header.
func IsRestricted(name string) bool {
	return restricted[textproto.CanonicalMIMEHeaderKey(name)]
}

type headerValue struct {
	key    string
	values []string
}

func (hv headerValue) joined() string {
	if hv.key == "Cookie" {
		return strings.Join(hv.values, "; ")
	}
	return strings.Join(hv.values, ", ")
}

// coalesceHeaders merges entries whose names differ only by case into one
// canonical entry. Raw keys are visited in sorted order so the result does
// not depend on map iteration.
func coalesceHeaders(h http.Header) []headerValue {
	raw := make([]string, 0, len(h))
	for k := range h {
		raw = append(raw, k)
	}
	sort.Strings(raw)

	index := make(map[string]int, len(raw))
	out := make([]headerValue, 0, len(raw))
	for _, k := range raw {
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		var vals []string
		for _, v := range h[k] {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		if i, ok := index[key]; ok {
			out[i].values = append(out[i].values, vals...)
			continue
		}
		index[key] = len(out)
		out = append(out, headerValue{key: key, values: vals})
	}
	return out
}

// applyHeaders copies caller headers onto req. It returns the requested
// transfer codings, which depend on the body and are applied later.
func applyHeaders(req *http.Request, h http.Header) (transferEncoding []string) {
	for _, hv := range coalesceHeaders(h) {
		v := hv.joined()
		if !restricted[hv.key] {
			req.Header.Set(hv.key, v)
			continue
		}
		switch hv.key {
		case "Host":
			req.Host = v
		case "Content-Length":
			// always derived from the body
		case "Transfer-Encoding":
			for _, te := range strings.Split(v, ",") {
				if te = strings.ToLower(strings.TrimSpace(te)); te != "" {
					transferEncoding = append(transferEncoding, te)
				}
			}
		case "Connection":
			if strings.EqualFold(v, "close") {
				req.Close = true
			} else {
				req.Header.Set(hv.key, v)
			}
		default:
			req.Header.Set(hv.key, v)
		}
	}
	return transferEncoding
}
