package token

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChoose(t *testing.T) {
	c := NewCodec("")
	in := Token{Verb: VerbChoose, OwnerID: "123456789012345678", ActivityID: "alley-t3", ChoiceID: "pickpocket"}
	raw, err := c.Encode(in)
	require.NoError(t, err)
	require.Equal(t, "1|c|123456789012345678|alley-t3|pickpocket|", raw)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncodeDecodePickKeepsSeed(t *testing.T) {
	c := NewCodec("s3cret")
	in := Token{Verb: VerbPick, OwnerID: "42", ActivityID: "vault-t5", ChoiceID: "b", Seed: 4294967295, HasSeed: true}
	raw, err := c.Encode(in)
	require.NoError(t, err)
	require.LessOrEqual(t, len(raw), MaxLen)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeRejects(t *testing.T) {
	c := NewCodec("")
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMalformed},
		{"truncated", "1|c|42|alley-t1", ErrMalformed},
		{"extra field", "1|c|42|alley-t1|a||x", ErrMalformed},
		{"version", "2|c|42|alley-t1|a|", ErrVersion},
		{"verb", "1|x|42|alley-t1|a|", ErrVerb},
		{"empty owner", "1|c||alley-t1|a|", ErrMalformed},
		{"bad activity", "1|c|42|Alley T1|a|", ErrMalformed},
		{"seed on choose", "1|c|42|alley-t1|a|5", ErrMalformed},
		{"missing seed on pick", "1|p|42|vault-t1|a|", ErrMalformed},
		{"bad seed", "1|p|42|vault-t1|a|!!", ErrMalformed},
		{"seed overflow", "1|p|42|vault-t1|a|zzzzzzzz", ErrMalformed},
		{"seed uppercase", "1|p|42|vault-t1|a|A", ErrMalformed},
		{"seed leading zeros", "1|p|42|vault-t1|a|000a", ErrMalformed},
		{"seed sign", "1|p|42|vault-t1|a|+a", ErrMalformed},
		{"too long", strings.Repeat("1", MaxLen+1), ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode(tc.raw)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSignedCodecRejectsTampering(t *testing.T) {
	c := NewCodec("s3cret")
	raw, err := c.Encode(Token{Verb: VerbPick, OwnerID: "42", ActivityID: "vault-t1", ChoiceID: "a", Seed: 7, HasSeed: true})
	require.NoError(t, err)

	forged := strings.Replace(raw, "|42|", "|43|", 1)
	_, err = c.Decode(forged)
	require.ErrorIs(t, err, ErrSignature)

	unsigned := raw[:strings.LastIndex(raw, sep)]
	_, err = c.Decode(unsigned)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = NewCodec("other").Decode(raw)
	require.ErrorIs(t, err, ErrSignature)
}

func TestEncodeValidates(t *testing.T) {
	c := NewCodec("")
	_, err := c.Encode(Token{Verb: VerbChoose, OwnerID: "a|b", ActivityID: "x", ChoiceID: "y"})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = c.Encode(Token{Verb: "z", OwnerID: "a", ActivityID: "x", ChoiceID: "y"})
	require.ErrorIs(t, err, ErrVerb)

	long := strings.Repeat("a", 32)
	_, err = NewCodec("k").Encode(Token{Verb: VerbPick, OwnerID: strings.Repeat("9", 40), ActivityID: long, ChoiceID: long, Seed: 1, HasSeed: true})
	require.ErrorIs(t, err, ErrTooLong)
}
