// Package instance keeps a single primary process per user. The primary listens on a
// loopback port recorded in a lock file; later processes relay their arguments to it and
// exit.
package instance

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrSecondInstance is returned by Acquire when another process already holds the lock.
// The caller's arguments have been handed to that process.
var ErrSecondInstance = errors.New("another instance is already running")

const (
	dialTimeout  = 500 * time.Millisecond
	writeGrace   = 250 * time.Millisecond
	acquireTries = 5
)

// Lock is held by the primary instance.
type Lock struct {
	path string
	ln   net.Listener

	closeOnce sync.Once
}

// Acquire takes the lock recorded at path, or relays args to the running primary. The
// lock file is created exclusively; a file whose primary cannot be dialled is stale and
// is replaced.
func Acquire(path string, args []string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("[Acquire] lock file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[Acquire] create lock dir")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "[Acquire] listen")
	}
	own := ln.Addr().String()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	for attempt := 0; attempt < acquireTries; attempt++ {
		created, err := createLockFile(path, port)
		if err != nil {
			ln.Close()
			return nil, err
		}
		if created {
			return &Lock{path: path, ln: ln}, nil
		}

		content, addr, ok := waitForAddr(path)
		if ok && addr != own {
			if err := relay(addr, args); err == nil {
				ln.Close()
				return nil, ErrSecondInstance
			}
		}
		log.Debug().Str("addr", addr).Msg("stale instance lock, taking over")
		removeIfUnchanged(path, content)
	}
	ln.Close()
	return nil, errors.Errorf("[Acquire] lock at %s is contended", path)
}

// createLockFile writes port to path only when no lock file exists yet.
func createLockFile(path, port string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Acquire] create lock file")
	}
	_, writeErr := f.WriteString(port)
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return false, errors.Errorf("[Acquire] write lock file: %v %v", writeErr, closeErr)
	}
	return true, nil
}

// waitForAddr reads the lock file, giving a primary that has just created it time to
// write its port.
func waitForAddr(path string) (string, string, bool) {
	deadline := time.Now().Add(writeGrace)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", "", false
		}
		content, addr, ok := readLock(path)
		if ok || time.Now().After(deadline) {
			return content, addr, ok
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// removeIfUnchanged deletes a stale lock file unless another process replaced it meanwhile.
func removeIfUnchanged(path, stale string) {
	current, err := os.ReadFile(path)
	if err != nil || string(current) != stale {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove stale instance lock")
	}
}

// Addr is the loopback address the primary listens on.
func (l *Lock) Addr() string {
	return l.ln.Addr().String()
}

// Serve passes the arguments of every later instance to fn until ctx is done.
func (l *Lock) Serve(ctx context.Context, fn func(args []string)) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "[Lock Serve] accept")
		}
		var args []string
		conn.SetReadDeadline(time.Now().Add(dialTimeout))
		err = json.NewDecoder(conn).Decode(&args)
		conn.Close()
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed second instance message")
			continue
		}
		fn(args)
	}
}

// Close releases the lock.
func (l *Lock) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", l.path).Msg("failed to remove instance lock")
		}
	})
	return err
}

func readLock(path string) (string, string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false
	}
	content := string(data)
	port, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil || port <= 0 {
		return content, "", false
	}
	return content, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), true
}

func relay(addr string, args []string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if args == nil {
		args = []string{}
	}
	return json.NewEncoder(conn).Encode(args)
}
