package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Sharder/internal/domain"
)

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr error
	}{
		{"known kind", Envelope{Kind: KindReady}, nil},
		{"missing kind", Envelope{}, ErrMalformed},
		{"unknown kind", Envelope{Kind: "teleport"}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParsePayload(t *testing.T) {
	env := MustNew(KindFetchRequest, 3, FetchRequest{EntityKind: "guild", EntityID: "123"})

	req, err := ParsePayload[FetchRequest](env)
	require.NoError(t, err)
	require.Equal(t, "guild", req.EntityKind)
	require.Equal(t, "123", req.EntityID)
	require.Equal(t, 3, env.Origin)
}

func TestParsePayload_Errors(t *testing.T) {
	_, err := ParsePayload[FetchRequest](Envelope{Kind: KindFetchRequest})
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParsePayload[FetchRequest](Envelope{Kind: KindFetchRequest, Payload: []byte(`"nope"`)})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestStartPayload_Range(t *testing.T) {
	p := StartPayload{Mode: domain.StartModeResume, FirstShardID: 5, LastShardID: 9, ShardCount: 5}
	require.Equal(t, domain.ShardRange{First: 5, Last: 9}, p.Range())
}

func TestCodec_RoundTripStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(MustNew(KindInfo, 1, LogPayload{Message: "hello"})))
	require.NoError(t, enc.Encode(MustNew(KindReady, 1, nil)))

	dec := NewDecoder(&buf)

	first, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, KindInfo, first.Kind)
	msg, err := ParsePayload[LogPayload](first)
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Message)

	second, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, KindReady, second.Kind)

	_, err = dec.Decode()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MalformedLineDoesNotBreakStream(t *testing.T) {
	input := "not json\n\n{\"kind\":\"ready\",\"origin\":2}\n"
	dec := NewDecoder(strings.NewReader(input))

	_, err := dec.Decode()
	require.True(t, errors.Is(err, ErrMalformed))

	env, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, KindReady, env.Kind)
	require.Equal(t, 2, env.Origin)
}

func TestDecoder_OversizeLineSkipped(t *testing.T) {
	input := `{"kind":"log","payload":{"message":"` + strings.Repeat("x", maxLineSize+1) + "\"}}\n" +
		`{"kind":"ready","origin":1}` + "\n"
	dec := NewDecoder(strings.NewReader(input))

	_, err := dec.Decode()
	require.ErrorIs(t, err, ErrMalformed)
	require.ErrorIs(t, err, ErrLineTooLong)

	env, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, KindReady, env.Kind)

	_, err = dec.Decode()
	require.ErrorIs(t, err, io.EOF)
}

func TestLineReader(t *testing.T) {
	input := "short\n" + strings.Repeat("y", 40) + "\nnext\ntail"
	lines := NewLineReader(strings.NewReader(input), 16)

	line, err := lines.Next()
	require.NoError(t, err)
	require.Equal(t, "short", string(line))

	_, err = lines.Next()
	require.ErrorIs(t, err, ErrLineTooLong)

	line, err = lines.Next()
	require.NoError(t, err)
	require.Equal(t, "next", string(line))

	line, err = lines.Next()
	require.NoError(t, err)
	require.Equal(t, "tail", string(line))

	_, err = lines.Next()
	require.ErrorIs(t, err, io.EOF)
}
