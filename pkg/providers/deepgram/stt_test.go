package deepgram

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/sabda/pkg/errorsx"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
)

type stubAPI struct {
	text     string
	err      error
	language string
}

func (s *stubAPI) transcribe(ctx context.Context, audio []byte, opts *interfaces.PreRecordedTranscriptionOptions) (string, error) {
	s.language = opts.Language
	return s.text, s.err
}

func TestTranscribeWithoutKeyIsConfigurationFailure(t *testing.T) {
	tr := New(Config{})
	_, err := tr.Transcribe(context.Background(), []byte("a"), "en")
	if !errorsx.HasReason(err, errorsx.ReasonTranscribeConfig) {
		t.Fatalf("expected config reason, got %v", err)
	}
	if err := tr.Health(context.Background()); err == nil {
		t.Fatalf("expected unhealthy without api key")
	}
}

func TestTranscribeDelegatesToSDK(t *testing.T) {
	stub := &stubAPI{text: "hello"}
	tr := New(Config{})
	tr.api = stub

	res, err := tr.Transcribe(context.Background(), []byte("a"), "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello" || stub.language != "en" {
		t.Fatalf("unexpected result %+v language=%s", res, stub.language)
	}
}

func TestTranscribeSDKErrorIsConnectivity(t *testing.T) {
	tr := New(Config{})
	tr.api = &stubAPI{err: errors.New("dial tcp: refused")}
	_, err := tr.Transcribe(context.Background(), []byte("a"), "en")
	if !errorsx.HasReason(err, errorsx.ReasonTranscribeConnect) {
		t.Fatalf("expected connect reason, got %v", err)
	}
}
