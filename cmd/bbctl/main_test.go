package main

import (
	"bufio"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bountybot/internal/api"
	"bountybot/internal/catalog"
	cl "bountybot/internal/cli"
	"bountybot/internal/config"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/ledger/memstore"
	"bountybot/internal/token"
)

// slowReader holds its first read back, like a user thinking at the prompt.
type slowReader struct {
	delay time.Duration
	r     io.Reader
	slept bool
}

func (s *slowReader) Read(p []byte) (int, error) {
	if !s.slept {
		s.slept = true
		time.Sleep(s.delay)
	}
	return s.r.Read(p)
}

func startAPI(t *testing.T) (*settings, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(memstore.New(), nil)
	acts, err := catalog.Default()
	require.NoError(t, err)
	recipes, err := crafting.DefaultCatalog()
	require.NoError(t, err)
	svc := game.NewService(l, acts, crafting.NewEngine(l, recipes, nil), token.NewCodec(""), nil)
	srv := httptest.NewServer(api.New(config.APIConfig{APIKey: "k"}, nil, svc).Handler())
	t.Cleanup(srv.Close)
	return &settings{apiBase: srv.URL, apiKey: "k", user: "u1"}, l
}

func withStdin(t *testing.T, r io.Reader) {
	t.Helper()
	prev := stdinReader
	stdinReader = bufio.NewReader(r)
	t.Cleanup(func() { stdinReader = prev })
}

func TestPlaySurvivesSlowChoice(t *testing.T) {
	s, l := startAPI(t)
	acts, err := catalog.Default()
	require.NoError(t, err)
	id := acts.ListKind(catalog.KindWeighted)[0].Meta().ID

	prev := requestTimeout
	requestTimeout = 200 * time.Millisecond
	t.Cleanup(func() { requestTimeout = prev })
	withStdin(t, &slowReader{delay: 400 * time.Millisecond, r: strings.NewReader("1\n")})

	cmd := newPlayCmd(s)
	cmd.SetArgs([]string{id})
	cmd.SetOut(io.Discard)
	require.NoError(t, cmd.Execute())

	acct, err := l.GetOrCreateAccount(t.Context(), "u1")
	require.NoError(t, err)
	require.Contains(t, acct.Cooldowns, acts.ListKind(catalog.KindWeighted)[0].Meta().CooldownKey, "the click reached the server")
}

func TestPromptSecretHidesInput(t *testing.T) {
	prevTerm, prevRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = prevTerm, prevRead })

	replies := [][]byte{[]byte("  "), []byte(" s3cret ")}
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) {
		next := replies[0]
		replies = replies[1:]
		return next, nil
	}
	withStdin(t, strings.NewReader("echoed\n"))

	got, err := promptSecret("API key")
	require.NoError(t, err)
	require.Equal(t, "s3cret", got)
	require.Empty(t, replies)

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = promptSecret("API key")
	require.Error(t, err)
}

func TestPromptSecretPipedStdin(t *testing.T) {
	prevTerm := isTerminal
	t.Cleanup(func() { isTerminal = prevTerm })
	isTerminal = func(int) bool { return false }
	withStdin(t, strings.NewReader("\npiped-key\n"))

	got, err := promptSecret("API key")
	require.NoError(t, err)
	require.Equal(t, "piped-key", got)
}

func TestUseSavesPromptedKey(t *testing.T) {
	cl.ProfileDir = t.TempDir()
	t.Cleanup(func() { cl.ProfileDir = "" })
	prevTerm, prevRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = prevTerm, prevRead })
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("k2"), nil }

	s := &settings{apiBase: "http://api.local", user: "u9"}
	cmd := newUseCmd(s)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	p, err := cl.LoadProfile()
	require.NoError(t, err)
	require.Equal(t, cl.Profile{APIBaseURL: "http://api.local", APIKey: "k2", UserID: "u9"}, p)
}
