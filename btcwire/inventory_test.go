package btcwire

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func repeatHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}

	return h
}

// TestInvToGetData decodes an inv with one tx and one block entry and checks
// that only the block ends up in the getdata payload.
func TestInvToGetData(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	payload.WriteByte(2)
	require.NoError(t, WriteUint32(&payload, 1))
	require.NoError(t, WriteHash(&payload, repeatHash(0x22)))
	require.NoError(t, WriteUint32(&payload, 2))
	require.NoError(t, WriteHash(&payload, repeatHash(0x11)))

	entries, err := DecodeInv(payload.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.False(t, entries[0].IsBlock())
	require.True(t, entries[1].IsBlock())

	var blocks []InvEntry
	for _, e := range entries {
		if e.IsBlock() {
			blocks = append(blocks, e)
		}
	}

	getData := EncodeGetData(blocks)
	require.Len(t, getData, 1)

	want := "01" + "02000000" + strings.Repeat("11", 32)
	require.Equal(t, want, hex.EncodeToString(getData[0]))
}

// TestDecodeInvTruncated makes sure a count larger than the entries present
// is rejected.
func TestDecodeInvTruncated(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: nil},
		{name: "missing entry", payload: []byte{0x01}},
		{
			name:    "short hash",
			payload: append([]byte{0x01, 0x02, 0, 0, 0}, 0x11, 0x11),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeInv(tc.payload)
			require.ErrorIs(t, err, ErrTruncatedInput)
		})
	}
}

// TestEncodeGetDataChunks checks that long lists are split and that btcd
// reads every chunk.
func TestEncodeGetDataChunks(t *testing.T) {
	t.Parallel()

	require.Empty(t, EncodeGetData(nil))

	entries := make([]InvEntry, MaxGetDataEntries*2+3)
	for i := range entries {
		entries[i] = InvEntry{
			Type: wire.InvTypeBlock,
			Hash: repeatHash(byte(i)),
		}
	}

	payloads := EncodeGetData(entries)
	require.Len(t, payloads, 3)

	var decoded []*wire.InvVect
	for _, p := range payloads {
		frame := ConstructMessage(MainNetMagic, CmdGetData, p)
		_, msg, _, err := wire.ReadMessageN(
			bytes.NewReader(frame), wire.ProtocolVersion,
			wire.MainNet,
		)
		require.NoError(t, err)

		getData, ok := msg.(*wire.MsgGetData)
		require.True(t, ok)
		decoded = append(decoded, getData.InvList...)
	}

	require.Len(t, decoded, len(entries))
	for i, iv := range decoded {
		require.Equal(t, entries[i].Type, iv.Type)
		require.Equal(t, entries[i].Hash, iv.Hash)
	}
}

// TestDecodeGetHeaders decodes a getheaders message produced by btcd.
func TestDecodeGetHeaders(t *testing.T) {
	t.Parallel()

	ref := wire.NewMsgGetHeaders()
	ref.ProtocolVersion = wire.ProtocolVersion
	for i := byte(1); i <= 3; i++ {
		h := repeatHash(i)
		require.NoError(t, ref.AddBlockLocatorHash(&h))
	}
	ref.HashStop = repeatHash(0xee)

	var buf bytes.Buffer
	require.NoError(t, ref.BtcEncode(&buf, wire.ProtocolVersion,
		wire.BaseEncoding))

	msg, err := DecodeGetHeaders(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, ref.ProtocolVersion, msg.ProtocolVersion)
	require.Len(t, msg.Locators, 3)
	for i, h := range msg.Locators {
		require.Equal(t, *ref.BlockLocatorHashes[i], h)
	}
	require.Equal(t, ref.HashStop, msg.StopHash)

	// A locator count that runs past the payload must not allocate or
	// read beyond the end.
	bogus := []byte{0x7f, 0x11, 0x01, 0x00, 0xff}
	bogus = append(bogus, bytes.Repeat([]byte{0xff}, 8)...)
	_, err = DecodeGetHeaders(bogus)
	require.ErrorIs(t, err, ErrTruncatedInput)

	_, err = DecodeGetHeaders(buf.Bytes()[:buf.Len()-1])
	require.ErrorIs(t, err, ErrTruncatedInput)
}
