package ipc

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runic-sh/runic/lib/plugin"
)

func pipeSockets() (*Socket, *Socket) {
	a, b := net.Pipe()
	return NewSocket(a), NewSocket(b)
}

func TestSocketRequestRoundTrip(t *testing.T) {
	host, provider := pipeSockets()
	defer host.Close()
	defer provider.Close()

	go func() {
		_ = host.SendRequest(Query{Text: "fire"})
	}()

	req, err := provider.RecvRequest()
	require.NoError(t, err)
	assert.Equal(t, Query{Text: "fire"}, req)
}

func TestSocketResponseRoundTrip(t *testing.T) {
	host, provider := pipeSockets()
	defer host.Close()
	defer provider.Close()

	want := Matches{
		Plugin:  plugin.PluginInfo{Name: "Applications"},
		Matches: []plugin.Match{{Title: "Firefox", ID: 3}},
	}
	go func() {
		_ = provider.SendResponse(want)
	}()

	resp, err := host.RecvResponse()
	require.NoError(t, err)
	assert.Equal(t, want, resp)
}

// Frames reassemble even when the stream delivers them a byte at a time.
func TestRecvReassemblesPartialDelivery(t *testing.T) {
	a, b := net.Pipe()
	provider := NewSocket(b)
	defer a.Close()
	defer provider.Close()

	payload, err := EncodeRequest(Query{Text: "slow link"})
	require.NoError(t, err)

	var frame [frameHeaderSize]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(payload)))
	raw := append(frame[:], payload...)

	go func() {
		for _, c := range raw {
			if _, err := a.Write([]byte{c}); err != nil {
				return
			}
		}
	}()

	req, err := provider.RecvRequest()
	require.NoError(t, err)
	assert.Equal(t, Query{Text: "slow link"}, req)
}

func TestSequentialFramesStayOrdered(t *testing.T) {
	host, provider := pipeSockets()
	defer host.Close()
	defer provider.Close()

	queries := []string{"f", "fi", "fir", "fire"}
	go func() {
		for _, q := range queries {
			if err := host.SendRequest(Query{Text: q}); err != nil {
				return
			}
		}
	}()

	for _, want := range queries {
		req, err := provider.RecvRequest()
		require.NoError(t, err)
		assert.Equal(t, Query{Text: want}, req)
	}
}

func TestRecvReportsEOFOnClose(t *testing.T) {
	host, provider := pipeSockets()
	defer provider.Close()

	require.NoError(t, host.Close())

	_, err := provider.RecvRequest()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecvRejectsOversizedFrame(t *testing.T) {
	a, b := net.Pipe()
	provider := NewSocket(b)
	defer a.Close()
	defer provider.Close()

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	go func() {
		_, _ = a.Write(header[:])
	}()

	_, err := provider.RecvRequest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestListenDialAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runic.sock")

	listener, err := Listen(path)
	require.NoError(t, err)

	type accepted struct {
		socket *Socket
		err    error
	}
	ch := make(chan accepted, 1)
	go func() {
		s, err := Accept(listener)
		ch <- accepted{s, err}
	}()

	host, err := Dial(path, time.Second)
	require.NoError(t, err)
	defer host.Close()

	a := <-ch
	require.NoError(t, a.err)
	defer a.socket.Close()

	go func() {
		_ = host.SendRequest(Quit{})
	}()
	req, err := a.socket.RecvRequest()
	require.NoError(t, err)
	assert.Equal(t, Quit{}, req)
}

// Dial retries until the listener appears, covering the window where the
// provider is still starting up.
func TestDialWaitsForListener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.sock")

	go func() {
		time.Sleep(150 * time.Millisecond)
		listener, err := Listen(path)
		if err != nil {
			return
		}
		if s, err := Accept(listener); err == nil {
			defer s.Close()
			_, _ = s.RecvRequest()
		}
	}()

	host, err := Dial(path, 2*time.Second)
	require.NoError(t, err)
	defer host.Close()
}

func TestDialTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")

	_, err := Dial(path, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestListenReplacesStaleSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")

	// A crashed session leaves its socket file behind.
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	listener, err := Listen(path)
	require.NoError(t, err)
	_ = listener.Close()
}

func TestSocketPathIsUniquePerSession(t *testing.T) {
	assert.NotEqual(t, SocketPath(), SocketPath())
}
