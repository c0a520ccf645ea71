package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader([]byte("--SPFS--")))
	require.NoError(t, w.WriteInt(42))
	require.NoError(t, w.WriteString("hello"))
	d := EmptyDigest
	require.NoError(t, w.WriteDigest(d))

	r := NewReader(&buf)
	require.NoError(t, r.ConsumeHeader([]byte("--SPFS--")))
	n, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
	got, err := r.ReadDigest()
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestWriteStringRejectsNUL(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.Error(t, w.WriteString("bad\x00string"))
}

func TestReadIntShortInput(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3}))
	_, err := r.ReadInt()
	require.Error(t, err)
}

func TestConsumeHeaderMismatch(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("WRONGMAG\n")))
	err := r.ConsumeHeader([]byte("--SPFS--"))
	require.Error(t, err)
}

func TestDigestStringRoundTrip(t *testing.T) {
	d := NewHasher([]byte("hello")).Digest()
	s := d.String()
	got, err := ParseDigest(s)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestParseDigestWrongLength(t *testing.T) {
	_, err := ParseDigest("AAAA")
	require.Error(t, err)
}
