// Package hostapitest runs the in-memory image host behind an httptest
// server.
package hostapitest

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/dharsanguruparan/snapdrop/internal/devhost"
)

// Upload records one accepted file.
type Upload = devhost.Upload

// Server is a started host. Test controls such as AddUser and FailUploads
// come from the embedded Host.
type Server struct {
	*httptest.Server
	*devhost.Host
}

// NewServer starts a host and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	host := devhost.New(devhost.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s := &Server{Host: host, Server: httptest.NewServer(host.Handler())}
	t.Cleanup(s.Server.Close)
	return s
}
