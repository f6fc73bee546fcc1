package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// brotliMinLength is the smallest body worth compressing. Status and
// progress replies stay below it; rendered parts are well above.
const brotliMinLength = 1024

// compressibleTypes are the content types the exam endpoints produce as text.
var compressibleTypes = []string{"application/json", "text/html", "text/plain"}

// brotliWriter holds the body back until it either reaches brotliMinLength or
// the handler finishes, then commits to compressing or passing it through.
type brotliWriter struct {
	gin.ResponseWriter
	quality   int
	minLength int
	buf       []byte
	enc       *brotli.Writer
	decided   bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.decided {
		if bw.enc != nil {
			return bw.enc.Write(data)
		}
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}
	if err := bw.commit(true); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// commit writes out the held bytes, compressed when allowed and worthwhile.
func (bw *brotliWriter) commit(large bool) error {
	bw.decided = true
	h := bw.ResponseWriter.Header()
	if large && h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type")) {
		h.Set("Content-Encoding", "br")
		h.Del("Content-Length")
		bw.enc = brotli.NewWriterLevel(bw.ResponseWriter, bw.quality)
		_, err := bw.enc.Write(bw.buf)
		bw.buf = nil
		return err
	}
	_, err := bw.ResponseWriter.Write(bw.buf)
	bw.buf = nil
	return err
}

func (bw *brotliWriter) close() error {
	if !bw.decided {
		if err := bw.commit(false); err != nil {
			return err
		}
	}
	if bw.enc != nil {
		return bw.enc.Close()
	}
	return nil
}

// Brotli compresses large text responses for clients that accept "br".
func Brotli() gin.HandlerFunc {
	return BrotliLevel(brotli.DefaultCompression)
}

// BrotliLevel is Brotli with an explicit quality between 0 and 11.
func BrotliLevel(quality int) gin.HandlerFunc {
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			quality:        quality,
			minLength:      brotliMinLength,
		}
		c.Writer = bw
		defer func() {
			if err := bw.close(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

// shouldSkip passes through requests whose bytes must reach the client as is.
func shouldSkip(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	// Range offsets refer to the uncompressed body.
	if c.GetHeader("Range") != "" {
		return true
	}
	return c.Request.Method == http.MethodHead
}

func compressible(contentType string) bool {
	for _, t := range compressibleTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return !strings.HasSuffix(strings.ReplaceAll(enc, " ", ""), "q=0")
		}
	}
	return false
}
