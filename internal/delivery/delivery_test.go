package delivery

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr error
	}{
		{"empty is direct", Config{}, BackendDirect, nil},
		{"direct", Config{Backend: "direct"}, BackendDirect, nil},
		{"case insensitive", Config{Backend: "LOCAL", LocalDir: dir}, BackendLocal, nil},
		{"local without dir", Config{Backend: "local"}, "", ErrMissingConfig},
		{"s3", Config{Backend: "s3", S3: S3Config{Bucket: "b", Region: "us-east-1"}}, BackendS3, nil},
		{"s3 without bucket", Config{Backend: "s3", S3: S3Config{Region: "us-east-1"}}, "", ErrMissingConfig},
		{"gcs without bucket", Config{Backend: "gcs"}, "", ErrMissingConfig},
		{"sftp without host", Config{Backend: "sftp", SFTP: SFTPConfig{User: "u", Dir: "/out", Password: "p"}}, "", ErrMissingConfig},
		{"sftp without auth", Config{Backend: "sftp", SFTP: SFTPConfig{Host: "h", User: "u", Dir: "/out"}}, "", ErrMissingConfig},
		{"sftp", Config{Backend: "sftp", SFTP: SFTPConfig{Host: "h", User: "u", Dir: "/out", Password: "p"}}, BackendSFTP, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(context.Background(), tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer b.Close()
			if b.Name() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b.Name())
			}
		})
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: "ftp"}); err == nil {
		t.Error("Expected an error for an unknown backend")
	}
}

func TestIsDirect(t *testing.T) {
	if !IsDirect(nil) || !IsDirect(Direct{}) {
		t.Error("Expected nil and Direct to be direct")
	}
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if IsDirect(local) {
		t.Error("Expected local not to be direct")
	}
}

func TestLocalPut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	b, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	obj := Object{Name: ObjectName("abc", ".mp3"), MimeType: "audio/mpeg", Data: []byte("ID3 data")}
	loc, err := Deliver(context.Background(), b, obj)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if loc.Path != filepath.Join(dir, "abc.mp3") || loc.Size != 8 || loc.Backend != BackendLocal {
		t.Errorf("Unexpected location %+v", loc)
	}
	got, err := os.ReadFile(loc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, obj.Data) {
		t.Errorf("Expected %q, got %q", obj.Data, got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected no temp files left, got %d entries", len(entries))
	}
}

func TestLocalPutStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewLocal(dir)

	loc, err := b.Put(context.Background(), Object{Name: "../../escape.png", Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(loc.Path) != dir {
		t.Errorf("Expected output inside %s, got %s", dir, loc.Path)
	}
}

func TestLocalPutCanceled(t *testing.T) {
	b, _ := NewLocal(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Deliver(ctx, b, Object{Name: "a.png", Data: []byte("x")}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDirectPutWritesNothing(t *testing.T) {
	loc, err := Deliver(context.Background(), Direct{}, Object{Name: "a.gif", Data: make([]byte, 12)})
	if err != nil {
		t.Fatal(err)
	}
	if loc.Backend != BackendDirect || loc.Size != 12 || loc.Path != "" {
		t.Errorf("Unexpected location %+v", loc)
	}
}

func TestS3Key(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "id.webm"},
		{"outputs", "outputs/id.webm"},
		{"/outputs/2026/", "outputs/2026/id.webm"},
	}
	for _, tt := range tests {
		b, err := NewS3(S3Config{Bucket: "b", Region: "eu-west-1", Prefix: tt.prefix})
		if err != nil {
			t.Fatal(err)
		}
		if got := b.Key("id.webm"); got != tt.want {
			t.Errorf("prefix %q: expected %s, got %s", tt.prefix, tt.want, got)
		}
	}
}

func TestSFTPDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	b, err := NewSFTP(SFTPConfig{Host: "127.0.0.1", Port: port, User: "u", Password: "p", Dir: "/out"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Deliver(context.Background(), b, Object{Name: "a.mp4", Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "dial tcp") {
		t.Errorf("Expected a dial error, got %v", err)
	}
}

func TestSFTPHandshakeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	b, err := NewSFTP(SFTPConfig{Host: "127.0.0.1", Port: port, User: "u", Password: "p", Dir: "/out"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Put(context.Background(), Object{Name: "a.mp4", Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "ssh handshake") {
		t.Errorf("Expected a handshake error, got %v", err)
	}
}

func TestSFTPBadKeyFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyFile, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewSFTP(SFTPConfig{Host: "h", User: "u", Dir: "/out", KeyFile: keyFile})
	if err == nil || !strings.Contains(err.Error(), "parse private key") {
		t.Errorf("Expected a parse error, got %v", err)
	}
}
