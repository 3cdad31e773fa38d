package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"magabot/internal/models"
)

func TestSupportedFormats(t *testing.T) {
	supported := []string{"ogg", "oga", ".mp3", "audio/mpeg", "audio/x-m4a", "audio/wave", "", "opus", "webm"}
	for _, f := range supported {
		if !IsSupportedFormat(f) {
			t.Errorf("format %q should be supported", f)
		}
	}

	unsupported := []string{"video/mp4x", "image/jpeg", "aiff", "midi"}
	for _, f := range unsupported {
		if IsSupportedFormat(f) {
			t.Errorf("format %q should NOT be supported", f)
		}
	}
}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3" {
			t.Errorf("unexpected model %q", r.FormValue("model"))
		}
		if r.FormValue("language") != "ru" {
			t.Errorf("unexpected language %q", r.FormValue("language"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "OggS" || header.Filename != "voice.ogg" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		w.Write([]byte(`{"text":" find me a job ","language":"ru","duration":1.5}`))
	}))
	defer srv.Close()

	p := Groq("k")
	p.BaseURL = srv.URL
	tr, err := NewWhisperClient(p, srv.Client()).Transcribe(context.Background(), Clip{Audio: []byte("OggS"), Format: "oga", Language: "ru"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "find me a job" || tr.Provider != "Groq" || tr.Duration != 1.5 {
		t.Errorf("unexpected transcript %+v", tr)
	}
}

func TestWhisperAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
	}))
	defer srv.Close()

	p := OpenAI("bad")
	p.BaseURL = srv.URL
	_, err := NewWhisperClient(p, srv.Client()).Transcribe(context.Background(), Clip{Audio: []byte("x"), Format: "mp3"})
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Errorf("expected API error message, got %v", err)
	}
}

func TestWhisperRejectsBadInput(t *testing.T) {
	c := NewWhisperClient(Groq("k"), nil)
	if _, err := c.Transcribe(context.Background(), Clip{}); err == nil {
		t.Error("empty clip should fail")
	}
	if _, err := c.Transcribe(context.Background(), Clip{Audio: []byte("x"), Format: "aiff"}); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestTTSSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"response_format":"opus"`) || !strings.Contains(string(body), `"input":"hello"`) {
			t.Errorf("unexpected body %s", body)
		}
		w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()

	audio, format, err := NewTTSClient(srv.URL, "k", "", "", srv.Client()).Synthesize(context.Background(), " hello ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "OggS-audio" || format != "ogg" {
		t.Errorf("unexpected audio %q %q", audio, format)
	}

	if _, _, err := NewTTSClient(srv.URL, "k", "", "", nil).Synthesize(context.Background(), "  "); err == nil {
		t.Error("empty text should fail")
	}
}

type stubTranscriber struct {
	text string
	err  error
	got  Clip
}

func (s *stubTranscriber) Transcribe(_ context.Context, clip Clip) (*Transcript, error) {
	s.got = clip
	if s.err != nil {
		return nil, s.err
	}
	return &Transcript{Text: s.text}, nil
}

func TestRecognizeHandler(t *testing.T) {
	stub := &stubTranscriber{text: "status please"}
	res, err := RecognizeHandler(stub)(context.Background(), models.Payload{Audio: []byte("a"), AudioFormat: "ogg", Language: "en"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.Text != "status please" || stub.got.Language != "en" || stub.got.Format != "ogg" {
		t.Errorf("unexpected result %+v clip %+v", res, stub.got)
	}

	if _, err := RecognizeHandler(&stubTranscriber{})(context.Background(), models.Payload{Audio: []byte("a")}); err == nil {
		t.Error("an empty transcript should be an error")
	}

	boom := errors.New("boom")
	if _, err := RecognizeHandler(&stubTranscriber{err: boom})(context.Background(), models.Payload{}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestSpecs(t *testing.T) {
	specs := Specs("groq", "openai", "https://tts.local/v1", "openai", "", "")
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Kind != models.CapSpeechRecognize || specs[0].Fallback == nil {
		t.Errorf("recognizer should have a fallback: %+v", specs[0])
	}
	if specs[1].Kind != models.CapSpeechSynthesize {
		t.Errorf("unexpected second spec %s", specs[1].Kind)
	}

	only := Specs("", "openai", "", "", "", "")
	if len(only) != 1 || only[0].Fallback != nil {
		t.Errorf("a single provider has no fallback: %+v", only)
	}
	if len(Specs("", "", "", "", "", "")) != 0 {
		t.Error("no keys, no specs")
	}
}
