//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// PeerCredentials holds the credentials of a peer process
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

func (p PeerCredentials) String() string {
	s := "uid=" + strconv.Itoa(p.UID)
	if p.PID > 0 {
		s += " pid=" + strconv.Itoa(p.PID)
	}
	return s
}

var errPeerUnsupported = errors.New("peer credentials not supported")

// CleanupSocket removes a stale socket file
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Only remove if it's a socket
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a socket is already listening
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func listen(path string, perm os.FileMode) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(path) {
		return nil, ErrAlreadyRunning
	}
	if err := CleanupSocket(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return listener, nil
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

func removeSocket(path string) {
	os.Remove(path)
}

// verifyPeer admits processes of the daemon's own user and root. It returns
// a description of the peer for the audit trail.
func verifyPeer(conn net.Conn) (string, error) {
	cred, err := GetPeerCredentials(conn)
	if errors.Is(err, errPeerUnsupported) {
		return "unknown", nil
	}
	if err != nil {
		return "", err
	}
	if cred.UID != os.Getuid() && cred.UID != 0 {
		return "", fmt.Errorf("peer uid %d is not the daemon user %d", cred.UID, os.Getuid())
	}
	return cred.String(), nil
}
