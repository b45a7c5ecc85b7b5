package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/apperr"
)

type fakeConn struct {
	id     uint64
	pushed []string
}

func (f *fakeConn) ID() uint64 { return f.id }
func (f *fakeConn) Push(line string) bool {
	f.pushed = append(f.pushed, line)
	return true
}

func TestCreateValidateDestroy(t *testing.T) {
	r := New(time.Hour)
	conn := &fakeConn{id: 1}

	token, err := r.Create(42, conn)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	uid, err := r.Validate(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, uid)

	require.NoError(t, r.Destroy(token))

	_, err = r.Validate(token)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}

func TestSingleLoginPerUser(t *testing.T) {
	r := New(time.Hour)
	c1 := &fakeConn{id: 1}
	c2 := &fakeConn{id: 2}

	_, err := r.Create(7, c1)
	require.NoError(t, err)

	_, err = r.Create(7, c2)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateExpiresPriorSessionOnSameConnection(t *testing.T) {
	r := New(time.Hour)
	conn := &fakeConn{id: 1}

	tok1, err := r.Create(1, conn)
	require.NoError(t, err)

	tok2, err := r.Create(2, conn)
	require.NoError(t, err)
	assert.NotEqual(t, tok1, tok2)

	_, err = r.Validate(tok1)
	require.Error(t, err)
}

func TestRemoveByConnection(t *testing.T) {
	r := New(time.Hour)
	conn := &fakeConn{id: 9}

	token, err := r.Create(5, conn)
	require.NoError(t, err)

	r.RemoveByConnection(conn.ID())

	_, err = r.Validate(token)
	require.Error(t, err)
	assert.False(t, r.IsOnline(5))
}

func TestExpiryOnValidate(t *testing.T) {
	r := New(time.Millisecond)
	conn := &fakeConn{id: 1}

	token, err := r.Create(1, conn)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = r.Validate(token)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}

func TestChatModeTracking(t *testing.T) {
	r := New(time.Hour)
	conn := &fakeConn{id: 1}
	_, err := r.Create(1, conn)
	require.NoError(t, err)

	r.SetChatPartner(1, 99)
	assert.True(t, r.IsChattingWith(1, 99))
	assert.False(t, r.IsChattingWith(1, 100))

	r.SetChatGroup(1, 5)
	assert.True(t, r.IsChattingInGroup(1, 5))

	r.SetChatPartner(1, 0)
	assert.False(t, r.IsChattingWith(1, 99))
}
