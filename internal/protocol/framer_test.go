package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// byteAtATimeReader feeds one byte per Read call, exercising the
// accumulation path instead of the common one-Read-equals-one-line case.
type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestFramerByteAtATime(t *testing.T) {
	f := NewFramer(&byteAtATimeReader{data: []byte("PING 1\r\nPING 2\r\n")})

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING 1", line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING 2", line)

	_, err = f.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramerSeveralLinesInOnePacket(t *testing.T) {
	f := NewFramer(bytes.NewReader([]byte("PING 1\r\nWHOAMI 2\r\nPING 3\r\n")))

	for _, want := range []string{"PING 1", "WHOAMI 2", "PING 3"} {
		line, err := f.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err := f.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramerOversizeLineNoCRLF(t *testing.T) {
	data := bytes.Repeat([]byte("a"), MaxLineSize+1)
	f := NewFramer(bytes.NewReader(data))

	_, err := f.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestFramerPartialLineThenClose(t *testing.T) {
	r, w := io.Pipe()
	f := NewFramer(r)

	go func() {
		_, _ = w.Write([]byte("PING"))
		_ = w.Close()
	}()

	done := make(chan struct{})
	var err error
	go func() {
		_, err = f.ReadLine()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after peer close")
	}
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramerTransportError(t *testing.T) {
	f := NewFramer(&erroringReader{})
	_, err := f.ReadLine()
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

type erroringReader struct{}

func (*erroringReader) Read([]byte) (int, error) {
	return 0, errBoom
}
