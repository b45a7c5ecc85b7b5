// Package account implements the file-backed user registry (spec.md
// §4.3): registration, credential verification, and id↔username lookup.
package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"chatserver/internal/apperr"
	"chatserver/internal/store/fsutil"
)

var usernameCharset = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// validate is a single shared validator.v10 instance carrying the
// custom tag rules spec.md §3 defines, which are looser than the
// library's built-in "alphanum"/"email" tags (underscore is a valid
// username character; the email rule only requires an '@' followed
// eventually by a '.', not full RFC 5322 conformance).
var validate = newValidator()

type registerFields struct {
	Username string `validate:"required,min=3,max=32,usernamecharset"`
	Email    string `validate:"required,min=5,max=96,looseemail"`
	Password string `validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("usernamecharset", func(fl validator.FieldLevel) bool {
		return usernameCharset.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("looseemail", func(fl validator.FieldLevel) bool {
		return looseEmail(fl.Field().String())
	})
	return v
}

// User is one registered account (spec.md §3).
type User struct {
	ID       int64
	Username string
	Salt     string
	Hash     string
	Email    string
	Active   bool
}

// Store is the account registry. All mutations and reads serialize
// through mu, bounding throughput in exchange for never torn records —
// the same tradeoff the teacher's Store makes with its own mutex.
type Store struct {
	mu         sync.Mutex
	path       string
	byUsername map[string]*User
	byID       map[int64]*User
	nextID     int64
}

// New loads (or creates) the user registry backed by path
// (spec.md §6.3's users.db).
func New(path string) (*Store, error) {
	s := &Store{
		path:       path,
		byUsername: make(map[string]*User),
		byID:       make(map[int64]*User),
	}
	lines, err := fsutil.ReadLines(path)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	for _, line := range lines {
		u, ok := parseUser(line)
		if !ok {
			continue // torn trailing record from a mid-write crash; skip it
		}
		s.byUsername[u.Username] = u
		s.byID[u.ID] = u
		if u.ID > s.nextID {
			s.nextID = u.ID
		}
	}
	return s, nil
}

func parseUser(line string) (*User, bool) {
	f := strings.Split(line, "|")
	if len(f) != 6 {
		return nil, false
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return nil, false
	}
	return &User{
		ID:       id,
		Username: f[1],
		Salt:     f[2],
		Hash:     f[3],
		Email:    f[4],
		Active:   f[5] == "1",
	}, true
}

func (u *User) render() string {
	active := "0"
	if u.Active {
		active = "1"
	}
	return strings.Join([]string{
		strconv.FormatInt(u.ID, 10), u.Username, u.Salt, u.Hash, u.Email, active,
	}, "|")
}

var errInvalidFields = apperr.New(apperr.KindValidation, 422, "invalid_fields", "invalid username, password, or email")
var errUsernameExists = apperr.New(apperr.KindConflict, 409, "username_exists", "username already registered")
var errInvalidCredentials = apperr.New(apperr.KindAuth, 401, "invalid_credentials", "invalid credentials")

// Register validates and persists a new account, returning its id.
func (s *Store) Register(username, password, email string) (int64, error) {
	if err := validate.Struct(registerFields{Username: username, Email: email, Password: password}); err != nil {
		return 0, errInvalidFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[username]; exists {
		return 0, errUsernameExists
	}

	salt, err := randomSalt()
	if err != nil {
		return 0, apperr.Internal(err)
	}
	hash, err := hashPassword(salt, password)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	u := &User{
		ID:       s.nextID + 1,
		Username: username,
		Salt:     salt,
		Hash:     hash,
		Email:    email,
		Active:   true,
	}
	if err := fsutil.AppendLine(s.path, u.render()); err != nil {
		return 0, apperr.Internal(err)
	}
	s.nextID = u.ID
	s.byUsername[u.Username] = u
	s.byID[u.ID] = u
	return u.ID, nil
}

// Authenticate verifies credentials and returns the matching user id.
// Every failure mode (unknown user, bad password, inactive account)
// collapses to the same 401 invalid_credentials response; spec.md
// §6.1's vocabulary has no separate code for "user doesn't exist" on
// login, deliberately avoiding a username-enumeration oracle.
func (s *Store) Authenticate(username, password string) (int64, error) {
	s.mu.Lock()
	u, ok := s.byUsername[username]
	s.mu.Unlock()

	if !ok || !u.Active {
		return 0, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), saltedDigest(u.Salt, password)) != nil {
		return 0, errInvalidCredentials
	}
	return u.ID, nil
}

// UserID looks up an id by username.
func (s *Store) UserID(username string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byUsername[username]
	if !ok {
		return 0, false
	}
	return u.ID, true
}

// Username looks up a username by id. Per spec.md §9, inactive users
// stay visible here — only register/authenticate consult Active.
func (s *Store) Username(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return "", false
	}
	return u.Username, true
}

// Exists reports whether username names a registered account.
func (s *Store) Exists(username string) bool {
	_, ok := s.UserID(username)
	return ok
}

func randomSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashPassword(salt, password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(saltedDigest(salt, password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// saltedDigest collapses salt+password through SHA-256 before handing it
// to bcrypt, which silently truncates (and, past 72 bytes, errors on)
// anything longer — a passphrase well under that limit on its own can
// still exceed it once the 32-char hex salt and separator are prepended.
func saltedDigest(salt, password string) []byte {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return []byte(hex.EncodeToString(sum[:]))
}

// ValidUsername enforces spec.md §3: 3-32 chars, [A-Za-z0-9_]. Exposed
// for callers outside this package (friend/group invite args) that
// need the same shape check without a store round-trip.
func ValidUsername(username string) bool {
	return len(username) >= 3 && len(username) <= 32 && usernameCharset.MatchString(username)
}

func looseEmail(email string) bool {
	if len(email) < 5 || len(email) > 96 || strings.ContainsAny(email, " \t") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
