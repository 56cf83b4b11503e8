// Package protocol implements the attach-stream wire framing of spec §4.5.
//
// Directly generalized from the teacher's internal/ttyv2/protocol.go: the
// same 4-byte big-endian length prefix plus a JSON envelope carrying a
// schema-version guard and a monotonic per-connection frame sequence. Only
// the frame vocabulary changes, from tmux-pane frames to the spec's
// Open/Resize/Data/Close (client) and Replay/Live/Resync/Exit (server).
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	SchemaVersion   = "amux.attach.v1"
	DefaultMaxFrame = 1 << 20 // 1 MiB, matches ttyv2's DefaultMaxFrame
)

var (
	ErrInvalidFrame    = errors.New("protocol: invalid frame")
	ErrFrameTooLarge   = errors.New("protocol: frame too large")
	ErrUnsupportedVers = errors.New("protocol: unsupported schema version")
)

// Frame types, client -> server.
const (
	TypeOpen   = "open"
	TypeResize = "resize"
	TypeData   = "data"
	TypeClose  = "close"
)

// Frame types, server -> client.
const (
	TypeReplay = "replay"
	TypeLive   = "live"
	TypeResync = "resync"
	TypeExit   = "exit"
)

// Envelope is the wire frame: a typed, sequenced, versioned JSON payload.
type Envelope struct {
	SchemaVersion string          `json:"schema_version"`
	Type          string          `json:"type"`
	FrameSeq      uint64          `json:"frame_seq"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps the schema version.
func NewEnvelope(frameType string, frameSeq uint64, payload any) (Envelope, error) {
	if strings.TrimSpace(frameType) == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrInvalidFrame)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		SchemaVersion: SchemaVersion,
		Type:          strings.TrimSpace(frameType),
		FrameSeq:      frameSeq,
		Payload:       body,
	}, nil
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.SchemaVersion) != SchemaVersion {
		return ErrUnsupportedVers
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidFrame)
	}
	return nil
}

func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}
	return json.Unmarshal(e.Payload, dst)
}

// WriteFrame writes a length-prefixed envelope to w.
func WriteFrame(w io.Writer, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > DefaultMaxFrame {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope from r.
func ReadFrame(r io.Reader, maxFrameSize int) (Envelope, error) {
	limit := maxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrame
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Envelope{}, fmt.Errorf("read frame length: %w", err)
	}
	size := int(binary.BigEndian.Uint32(lenBuf[:]))
	if size <= 0 || size > limit {
		return Envelope{}, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Client -> server payloads.

type OpenPayload struct {
	SessionID   string `json:"session_id"`
	InitialCols int    `json:"initial_cols"`
	InitialRows int    `json:"initial_rows"`
}

type ResizePayload struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type DataPayload struct {
	Bytes []byte `json:"bytes"`
}

// Server -> client payloads. Replay/Live/Resync all carry a byte slice;
// only the Envelope.Type distinguishes them, per spec §9 open question (a).

type OutputPayload struct {
	Bytes []byte `json:"bytes"`
}

type ExitPayload struct {
	Code int `json:"code"`
}
