package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// DecompressRequest inflates gzip request bodies before they reach the
// handlers. The inflated body is capped at maxBytes; a corrupt stream is
// answered with 400.
func DecompressRequest(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !acceptsGzip(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
			}
			req.Body = &inflatedBody{Reader: io.LimitReader(zr, maxBytes), zr: zr, raw: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func acceptsGzip(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type inflatedBody struct {
	io.Reader
	zr  *gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Close() error {
	err := b.zr.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
