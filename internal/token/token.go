package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// Version is the only layout Decode accepts.
	Version = 1

	// MaxLen is the transport ceiling for an interactive control identifier.
	MaxLen = 100

	sep    = "|"
	tagLen = 8
)

type Verb string

const (
	VerbChoose Verb = "c" // weighted-choice option
	VerbPick   Verb = "p" // seeded-puzzle alternative
)

var (
	ErrMalformed = errors.New("malformed action token")
	ErrVersion   = errors.New("unsupported action token version")
	ErrVerb      = errors.New("unknown action token verb")
	ErrSignature = errors.New("action token signature mismatch")
	ErrTooLong   = errors.New("action token exceeds length limit")
)

var (
	ownerRE = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,40}$`)
	idRE    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
)

// ValidOwner reports whether id can be carried as a token owner.
func ValidOwner(id string) bool {
	return ownerRE.MatchString(id)
}

// Token is the state a front-end round-trips so the next click can be resolved
// without a server-side session.
type Token struct {
	Verb       Verb
	OwnerID    string
	ActivityID string
	ChoiceID   string
	Seed       uint32
	HasSeed    bool
}

func (t Token) validate() error {
	switch t.Verb {
	case VerbChoose:
		if t.HasSeed {
			return fmt.Errorf("%w: seed not allowed for verb %q", ErrMalformed, t.Verb)
		}
	case VerbPick:
		if !t.HasSeed {
			return fmt.Errorf("%w: seed required for verb %q", ErrMalformed, t.Verb)
		}
	default:
		return ErrVerb
	}
	if !ownerRE.MatchString(t.OwnerID) {
		return fmt.Errorf("%w: owner id", ErrMalformed)
	}
	if !idRE.MatchString(t.ActivityID) {
		return fmt.Errorf("%w: activity id", ErrMalformed)
	}
	if !idRE.MatchString(t.ChoiceID) {
		return fmt.Errorf("%w: choice id", ErrMalformed)
	}
	return nil
}

// Codec encodes and decodes tokens. A non-empty secret appends a truncated
// HMAC-SHA256 tag and makes Decode require it.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	c := &Codec{}
	if s := strings.TrimSpace(secret); s != "" {
		c.secret = []byte(s)
	}
	return c
}

func (c *Codec) Signed() bool {
	return c != nil && len(c.secret) > 0
}

func (c *Codec) Encode(t Token) (string, error) {
	if err := t.validate(); err != nil {
		return "", err
	}
	seed := ""
	if t.HasSeed {
		seed = strconv.FormatUint(uint64(t.Seed), 36)
	}
	body := strings.Join([]string{
		strconv.Itoa(Version),
		string(t.Verb),
		t.OwnerID,
		t.ActivityID,
		t.ChoiceID,
		seed,
	}, sep)
	if c.Signed() {
		body += sep + c.tag(body)
	}
	if len(body) > MaxLen {
		return "", ErrTooLong
	}
	return body, nil
}

func (c *Codec) Decode(raw string) (Token, error) {
	var t Token
	if raw == "" || len(raw) > MaxLen {
		return t, ErrMalformed
	}
	parts := strings.Split(raw, sep)
	want := 6
	if c.Signed() {
		want = 7
	}
	if len(parts) != want {
		return t, fmt.Errorf("%w: want %d fields, got %d", ErrMalformed, want, len(parts))
	}
	if parts[0] != strconv.Itoa(Version) {
		return t, ErrVersion
	}
	if c.Signed() {
		body := strings.Join(parts[:6], sep)
		if !hmac.Equal([]byte(parts[6]), []byte(c.tag(body))) {
			return t, ErrSignature
		}
	}

	t.Verb = Verb(parts[1])
	t.OwnerID = parts[2]
	t.ActivityID = parts[3]
	t.ChoiceID = parts[4]
	if parts[5] != "" {
		seed, err := strconv.ParseUint(parts[5], 36, 32)
		if err != nil || strconv.FormatUint(seed, 36) != parts[5] {
			return Token{}, fmt.Errorf("%w: seed", ErrMalformed)
		}
		t.Seed = uint32(seed)
		t.HasSeed = true
	}
	if err := t.validate(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (c *Codec) tag(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:tagLen])
}
