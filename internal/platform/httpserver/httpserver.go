package httpserver

import (
	"net/http"
	"time"
)

// New builds the records API server. Only the header read and idle keep-alive
// are bounded: multipart photo uploads can legitimately stream bodies for a
// while, so no global read or write deadline is set.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
