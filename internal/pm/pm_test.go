package pm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/apperr"
)

type fakeAccounts struct{ byID map[int64]string }

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byID: map[int64]string{}} }
func (f *fakeAccounts) add(id int64, username string) { f.byID[id] = username }
func (f *fakeAccounts) Username(id int64) (string, bool) { v, ok := f.byID[id]; return v, ok }
func (f *fakeAccounts) UserID(username string) (int64, bool) {
	for id, u := range f.byID {
		if u == username {
			return id, true
		}
	}
	return 0, false
}

func newStore(t *testing.T, accounts Accounts) *Store {
	s, err := New(filepath.Join(t.TempDir(), "pm"), accounts)
	require.NoError(t, err)
	return s
}

func TestSendAndHistory(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	id1, err := s.Send(1, "bob", "hello")
	require.NoError(t, err)
	id2, err := s.Send(2, "alice", "hi_there")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	hist, err := s.History(1, "bob", 0)
	require.NoError(t, err)
	assert.Contains(t, hist, "alice:hello")
	assert.Contains(t, hist, "bob:hi_there")
}

func TestSendRejectsSelfAndBadPayload(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	s := newStore(t, accounts)

	_, err := s.Send(1, "alice", "hello")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	accounts.add(2, "bob")
	_, err = s.Send(1, "bob", "has space")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestConversationsAndMarkRead(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	_, err := s.Send(2, "alice", "hi")
	require.NoError(t, err)
	_, err = s.Send(2, "alice", "again")
	require.NoError(t, err)

	convs, err := s.Conversations(1)
	require.NoError(t, err)
	assert.Equal(t, "bob:2", convs)

	require.NoError(t, s.MarkRead(1, "bob"))

	convs, err = s.Conversations(1)
	require.NoError(t, err)
	assert.Equal(t, "bob:0", convs)
}

func TestHistoryLimitClamped(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	for i := 0; i < 5; i++ {
		_, err := s.Send(1, "bob", "msg")
		require.NoError(t, err)
	}

	hist, err := s.History(1, "bob", 2)
	require.NoError(t, err)
	assert.Len(t, splitNonEmpty(hist, ','), 2)
}

func splitNonEmpty(s string, sep rune) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == sep {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
