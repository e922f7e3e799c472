package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// MaxFrameSize bounds a single message. Larger frames indicate a corrupt
// or hostile peer and fail the session.
const MaxFrameSize = 16 << 20

// frameHeaderSize is the big-endian length prefix in front of every frame.
const frameHeaderSize = 4

// Socket is a duplex, message-framed channel over a stream connection.
// Frames are a 4-byte big-endian length followed by the payload; partial
// reads and writes reassemble. Send and receive sides are each serialized
// with their own lock, so either may be used from multiple goroutines, but
// receiving is typically confined to one reader goroutine.
type Socket struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewSocket wraps an established connection.
func NewSocket(conn net.Conn) *Socket {
	return &Socket{conn: conn}
}

// Close closes the underlying connection, unblocking pending reads.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SendRequest frames and writes one Request.
func (s *Socket) SendRequest(req Request) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return s.send(payload)
}

// RecvRequest blocks until a full Request frame arrives.
func (s *Socket) RecvRequest() (Request, error) {
	payload, err := s.recv()
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// SendResponse frames and writes one Response.
func (s *Socket) SendResponse(resp Response) error {
	payload, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return s.send(payload)
}

// RecvResponse blocks until a full Response frame arrives.
func (s *Socket) RecvResponse() (Response, error) {
	payload, err := s.recv()
	if err != nil {
		return nil, err
	}
	return DecodeResponse(payload)
}

func (s *Socket) send(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Newf("frame of %d bytes exceeds maximum %d", len(payload), MaxFrameSize)
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(header[:]); err != nil {
		return errors.Wrap(err, "failed to write frame header")
	}
	if _, err := s.conn.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write frame payload")
	}
	return nil
}

func (s *Socket) recv() ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read frame header")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, errors.Newf("frame length %d exceeds maximum %d", length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read frame payload")
	}
	return payload, nil
}

// SocketPath returns a session-unique socket path under XDG_RUNTIME_DIR,
// falling back to the system temp directory.
func SocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return fmt.Sprintf("%s/runic-%s.sock", dir, uuid.NewString())
}

// Listen binds a Unix domain socket at path, removing any stale file left
// behind by a previous session.
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", path)
	}
	return listener, nil
}

// Accept waits for the single peer connection and wraps it. The listener
// is closed afterwards; the session uses exactly one connection.
func Accept(listener net.Listener) (*Socket, error) {
	conn, err := listener.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "failed to accept connection")
	}
	_ = listener.Close()
	return NewSocket(conn), nil
}

// Dial connects to the Unix domain socket at path, retrying while the
// peer is still starting up. It gives up after timeout.
func Dial(path string, timeout time.Duration) (*Socket, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return NewSocket(conn), nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(err, "timed out connecting to %s", path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
