package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// responseBuffer holds a handler's response so it can be checked, and
// replaced, before anything reaches the client.
type responseBuffer struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func newResponseBuffer(w gin.ResponseWriter) *responseBuffer {
	return &responseBuffer{ResponseWriter: w}
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) WriteHeaderNow() { b.WriteHeader(http.StatusOK) }

func (b *responseBuffer) Write(data []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(data)
}

func (b *responseBuffer) WriteString(s string) (int, error) { return b.Write([]byte(s)) }

func (b *responseBuffer) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *responseBuffer) Size() int { return b.body.Len() }

func (b *responseBuffer) Written() bool { return b.status != 0 }

func (b *responseBuffer) replaceJSON(status int, payload any) {
	b.status = status
	b.body.Reset()
	b.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(&b.body).Encode(payload)
}

func (b *responseBuffer) flush() error {
	b.ResponseWriter.WriteHeader(b.Status())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.ResponseWriter.Write(b.body.Bytes())
	return err
}
