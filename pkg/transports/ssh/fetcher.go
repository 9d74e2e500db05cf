package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// MaxFileSize bounds a downloaded file.
const MaxFileSize = 4 << 20

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "download")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// Fetcher downloads single files over SFTP.
type Fetcher struct {
	// Home locates ~/.ssh keys and known_hosts
	Home string

	// User is used when the URL carries none
	User string

	// Insecure skips known_hosts verification
	Insecure bool

	Logger zerolog.Logger
}

// Fetch downloads the file named by an sftp:// URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	cfg, err := ParseURL(rawURL, f.User, f.Home)
	if err != nil {
		return nil, &TransportError{Op: "parse", Err: err}
	}
	if f.Insecure {
		cfg.StrictHostKeyChecking = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "config", Err: err, IsAuthError: true}
	}

	client, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	f.Logger.Debug().Str("address", cfg.Address()).Str("remote", cfg.Path).Msg("downloading profile over sftp")

	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	defer sc.Close()

	data, err := download(ctx, sc, cfg.Path)
	if err != nil {
		return nil, err
	}

	f.Logger.Debug().
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("sftp download complete")
	return data, nil
}

// dial opens an SSH connection honouring ctx during the TCP handshake.
func dial(ctx context.Context, cfg *Config) (*ssh.Client, error) {
	clientConfig, closeAgent, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}
	defer closeAgent()

	d := net.Dialer{Timeout: cfg.ConnectionTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.Address(), clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "handshake", Err: err, IsAuthError: true}
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// remoteFS is the part of *sftp.Client used for downloads.
type remoteFS interface {
	Open(path string) (*sftp.File, error)
}

func download(ctx context.Context, sc remoteFS, path string) ([]byte, error) {
	rf, err := sc.Open(path)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: fmt.Errorf("failed to open remote file: %w", err)}
	}
	defer rf.Close()

	return readLimited(ctx, rf, path)
}

// readLimited reads r up to MaxFileSize, checking ctx between chunks.
func readLimited(ctx context.Context, r io.Reader, name string) ([]byte, error) {
	var out []byte
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Op: "download", Err: err}
		}
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if len(out) > MaxFileSize {
			return nil, &TransportError{Op: "download", Err: fmt.Errorf("%s exceeds %d bytes", name, MaxFileSize)}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, &TransportError{Op: "download", Err: err, IsTemporary: true}
		}
	}
}
