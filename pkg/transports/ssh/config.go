package ssh

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Scheme is the URL scheme handled by this package.
const Scheme = "sftp"

// AuthMethod represents the type of SSH authentication.
type AuthMethod string

const (
	// AuthMethodKey uses a private key file
	AuthMethodKey AuthMethod = "key"

	// AuthMethodAgent uses the agent listening on SSH_AUTH_SOCK
	AuthMethodAgent AuthMethod = "agent"
)

// defaultKeyNames are tried in order when no key path is configured.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Config holds the connection settings for one profile download.
type Config struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username
	User string

	// Path is the remote file to download
	Path string

	// AuthMethod specifies which authentication method to use
	AuthMethod AuthMethod

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string

	// StrictHostKeyChecking rejects hosts missing from known_hosts
	StrictHostKeyChecking bool

	// ConnectionTimeout is the timeout for establishing a connection
	ConnectionTimeout time.Duration

	// AgentSocket is the SSH agent socket, normally $SSH_AUTH_SOCK
	AgentSocket string
}

// DefaultConfig returns a Config for host and user with keys under home/.ssh.
func DefaultConfig(host, user, home string) *Config {
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(home, ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
	}
}

// ParseURL builds a Config from sftp://[user@]host[:port]/path. A missing
// user falls back to defaultUser. The agent is preferred when one is running.
func ParseURL(raw, defaultUser, home string) (*Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid sftp url: %w", err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("sftp url %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("sftp url %q has no file path", raw)
	}

	user := defaultUser
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}

	c := DefaultConfig(u.Hostname(), user, home)
	c.Path = u.Path
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		c.Port = port
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		c.AuthMethod = AuthMethodAgent
		c.AgentSocket = sock
	} else {
		c.PrivateKeyPath = findKey(home)
	}
	return c, nil
}

func findKey(home string) string {
	for _, name := range defaultKeyNames {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Path == "" {
		return fmt.Errorf("remote path is required")
	}

	switch c.AuthMethod {
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("no private key found (tried %v) and no ssh agent running", defaultKeyNames)
		}
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			return fmt.Errorf("private key not accessible: %w", err)
		}
	case AuthMethodAgent:
		if c.AgentSocket == "" {
			return fmt.Errorf("agent auth requires an agent socket")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	if c.StrictHostKeyChecking && c.KnownHostsPath == "" {
		return fmt.Errorf("strict host key checking requires a known_hosts path")
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig. The returned closer
// releases the agent connection, if any.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, func() error, error) {
	closer := func() error { return nil }

	var auth []ssh.AuthMethod
	switch c.AuthMethod {
	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))

	case AuthMethodAgent:
		conn, err := net.Dial("unix", c.AgentSocket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
		}
		closer = conn.Close
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.StrictHostKeyChecking {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			_ = closer()
			return nil, nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, closer, nil
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
