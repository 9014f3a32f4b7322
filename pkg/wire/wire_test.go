package wire

import (
	"bytes"
	"testing"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, TagRequestFileInfo, RequestFileInfo{Passphrase: "correct-horse-battery"}))

	var got RequestFileInfo
	require.NoError(t, Receive(&buf, TagRequestFileInfo, &got))
	require.Equal(t, "correct-horse-battery", got.Passphrase)
}

func TestReceiveTagMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, TagFileInfo, FileInfo{FileName: "x"}))

	var got RequestFileInfo
	err := Receive(&buf, TagRequestFileInfo, &got)

	var mismatch *nudgeerr.ReceiveExpectationNotMet
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, string(TagRequestFileInfo), mismatch.Expected)
	require.Equal(t, string(TagFileInfo), mismatch.Got)
}

func TestReceiveErrorTagSurfacesServerError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendError(&buf, "Passphrase not found"))

	var got FileInfo
	err := Receive(&buf, TagFileInfo, &got)

	var srvErr *nudgeerr.ServerError
	require.ErrorAs(t, err, &srvErr)
	require.Equal(t, "Passphrase not found", srvErr.Reason)
}

func TestSplitFrameTrimsNulAndWhitespace(t *testing.T) {
	raw := append([]byte("X2S_PPM {\"passphrase\":\"a-b-c\"}\n"), make([]byte, 10)...) // padded with NULs
	tag, body := splitFrame(raw)
	require.Equal(t, "X2S_PPM", tag)
	require.Equal(t, `{"passphrase":"a-b-c"}`, body)
}

func TestAnonymousStringJSON(t *testing.T) {
	hidden := Hidden()
	data, err := hidden.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "null", string(data))
	require.Equal(t, "<anonymous>", hidden.String())

	var roundTripped AnonymousString
	require.NoError(t, roundTripped.UnmarshalJSON(data))
	require.False(t, roundTripped.set)

	present := Anon("alice")
	data, err = present.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"alice"`, string(data))
}

func TestAnonymousStringEqualBothAbsentMatches(t *testing.T) {
	require.True(t, Hidden().Equal(Hidden()))
	require.True(t, Anon("h1").Equal(Anon("h1")))
	require.False(t, Anon("h1").Equal(Anon("h2")))
	require.False(t, Anon("h1").Equal(Hidden()))
}
