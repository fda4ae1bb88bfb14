// Package weblink serves one file over HTTP so peers without lanshare can
// download it with a browser.
package weblink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DownloadPath is the only route the server answers.
const DownloadPath = "/download"

// Server streams a single file at DownloadPath.
type Server struct {
	Path   string
	Logger *slog.Logger
}

func New(path string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Path: path, Logger: logger}
}

// Handler returns the HTTP handler for the download route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(DownloadPath, s.serveDownload)
	return mux
}

func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, err := os.Open(s.Path)
	if err != nil {
		s.Logger.Warn("weblink: open failed", "path", s.Path, "err", err)
		http.Error(w, "file unavailable", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.Error(w, "file unavailable", http.StatusNotFound)
		return
	}

	name := filepath.Base(s.Path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	s.Logger.Info("weblink: download started", "remote", r.RemoteAddr, "file", name)
	n, err := io.Copy(w, f)
	if err != nil {
		s.Logger.Warn("weblink: download aborted", "remote", r.RemoteAddr, "bytes", n, "err", err)
		return
	}
	s.Logger.Info("weblink: download completed", "remote", r.RemoteAddr, "bytes", n)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("weblink: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.Logger.Info("weblink: serving", "url", LinkURL(ln.Addr()), "file", filepath.Base(s.Path))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// LinkURL is the download URL to hand out for a server bound to addr. A
// wildcard bind is shown with the host's LAN IPv4 address.
func LinkURL(addr net.Addr) string {
	return linkURL(addr, lanIPv4)
}

func linkURL(addr net.Addr, lan func() net.IP) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + DownloadPath
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
		if lip := lan(); lip != nil {
			host = lip.String()
		}
	}
	return "http://" + net.JoinHostPort(host, port) + DownloadPath
}

// lanIPv4 returns the first IPv4 address of an up, non-loopback interface.
func lanIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
					return ip4
				}
			}
		}
	}
	return nil
}
