package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeData, 1, DataPayload{Bytes: []byte("hello")})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env))

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, TypeData, got.Type)
	require.EqualValues(t, 1, got.FrameSeq)

	var payload DataPayload
	require.NoError(t, got.DecodePayload(&payload))
	require.Equal(t, []byte("hello"), payload.Bytes)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	env, err := NewEnvelope(TypeLive, 1, OutputPayload{Bytes: make([]byte, 128)})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env))

	_, err = ReadFrame(&buf, 16)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestValidateRejectsWrongSchemaVersion(t *testing.T) {
	env := Envelope{SchemaVersion: "other", Type: TypeOpen}
	require.ErrorIs(t, env.Validate(), ErrUnsupportedVers)
}

func TestEmptyTypeRejected(t *testing.T) {
	_, err := NewEnvelope("", 0, nil)
	require.ErrorIs(t, err, ErrInvalidFrame)
}
