// Package reply defines the renderable side of a filter: anything that can be
// turned into a final HTTP response.
package reply

import (
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// Reply is a value that can be rendered into a Response.
type Reply interface {
	IntoResponse() *Response
}

// Response is the final, rendered form of a reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IntoResponse returns r itself, so a Response is also a Reply.
func (r *Response) IntoResponse() *Response { return r }

// StatusCode returns the response status, defaulting to 200 when unset.
func (r *Response) StatusCode() int {
	if r == nil || r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// ContentLength returns the body size in bytes.
func (r *Response) ContentLength() int {
	if r == nil {
		return 0
	}
	return len(r.Body)
}

// Text returns a 200 text/plain reply.
func Text(s string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{Status: http.StatusOK, Header: h, Body: []byte(s)}
}

// Bytes returns a 200 reply with the given content type.
func Bytes(contentType string, b []byte) *Response {
	h := make(http.Header)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return &Response{Status: http.StatusOK, Header: h, Body: b}
}

// JSON encodes v as a 200 application/json reply. An encoding failure
// renders as a 500.
func JSON(v any) *Response {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		slog.Error("reply: json encode failed", "error", err)
		return &Response{Status: http.StatusInternalServerError}
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{Status: http.StatusOK, Header: h, Body: append(data, '\n')}
}

// WithStatus renders r and overrides its status.
func WithStatus(r Reply, status int) *Response {
	resp := r.IntoResponse()
	resp.Status = status
	return resp
}

// WithHeader renders r and sets one header on it.
func WithHeader(r Reply, key, value string) *Response {
	resp := r.IntoResponse()
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(key, value)
	return resp
}

// Write renders r onto w.
func Write(w http.ResponseWriter, r Reply) {
	resp := r.IntoResponse()
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode())
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			slog.Debug("reply: write body failed", "error", err)
		}
	}
}
