package delivery

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig configures the sftp backend. KeyFile takes precedence over
// Password. Without KnownHostsFile the host key is not verified.
type SFTPConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHostsFile string
	Dir            string
	Timeout        time.Duration
}

// SFTP uploads outputs to a remote directory. A connection is opened per
// delivery.
type SFTP struct {
	cfg    SFTPConfig
	client *ssh.ClientConfig
	addr   string
}

// NewSFTP validates cfg and prepares the ssh client configuration.
func NewSFTP(cfg SFTPConfig) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Dir == "" {
		return nil, fmt.Errorf("%w: sftp host, user and dir", ErrMissingConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var auths []ssh.AuthMethod
	switch {
	case cfg.KeyFile != "":
		keyBytes, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case cfg.Password != "":
		auths = append(auths, ssh.Password(cfg.Password))
	default:
		return nil, fmt.Errorf("%w: sftp password or key file", ErrMissingConfig)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("SFTP host key verification disabled; set SFTP_KNOWN_HOSTS to enable it")
	}

	return &SFTP{
		cfg: cfg,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.Timeout,
		},
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}, nil
}

// Name implements Backend.
func (b *SFTP) Name() string { return BackendSFTP }

// Put implements Backend.
func (b *SFTP) Put(ctx context.Context, obj Object) (Location, error) {
	d := net.Dialer{Timeout: b.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return Location{}, fmt.Errorf("dial tcp %s: %w", b.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, b.addr, b.client)
	if err != nil {
		conn.Close()
		return Location{}, fmt.Errorf("ssh handshake with %s: %w", b.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return Location{}, fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(b.cfg.Dir); err != nil {
		return Location{}, fmt.Errorf("ensure remote dir %s: %w", b.cfg.Dir, err)
	}

	remotePath := path.Join(b.cfg.Dir, path.Base(obj.Name))
	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return Location{}, fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	if _, err := f.Write(obj.Data); err != nil {
		f.Close()
		return Location{}, fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return Location{}, fmt.Errorf("close remote file %s: %w", remotePath, err)
	}

	return Location{
		Backend: BackendSFTP,
		Host:    b.addr,
		Path:    remotePath,
		Size:    int64(len(obj.Data)),
	}, nil
}

// Close implements Backend.
func (b *SFTP) Close() error { return nil }
