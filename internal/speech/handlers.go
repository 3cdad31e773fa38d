package speech

import (
	"context"
	"fmt"

	"magabot/internal/capability"
	"magabot/internal/models"
)

// RecognizeHandler exposes a Transcriber as the speech-recognize capability
func RecognizeHandler(t Transcriber) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		tr, err := t.Transcribe(ctx, Clip{
			Audio:    p.Audio,
			Format:   p.AudioFormat,
			Language: p.Language,
		})
		if err != nil {
			return nil, err
		}
		if tr.Text == "" {
			return nil, fmt.Errorf("no speech recognized")
		}
		return &models.Result{Text: tr.Text}, nil
	}
}

// SynthesizeHandler exposes a Synthesizer as the speech-synthesize capability
func SynthesizeHandler(s Synthesizer) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		audio, format, err := s.Synthesize(ctx, p.Text)
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: p.Text, Audio: audio, AudioFormat: format}, nil
	}
}

// Specs builds the registry entries for the configured speech providers.
// Groq is the primary recognizer when both keys are present, OpenAI the fallback.
func Specs(groqKey, openAIKey, ttsBaseURL, ttsKey, ttsModel, ttsVoice string) []capability.Spec {
	var specs []capability.Spec

	var recognizers []capability.Handler
	for _, p := range []Provider{Groq(groqKey), OpenAI(openAIKey)} {
		if p.Configured() {
			recognizers = append(recognizers, RecognizeHandler(NewWhisperClient(p, nil)))
		}
	}
	if len(recognizers) > 0 {
		spec := capability.Spec{
			Kind:        models.CapSpeechRecognize,
			Class:       models.ClassFast,
			Description: "Voice note transcription (Whisper)",
			Primary:     recognizers[0],
		}
		if len(recognizers) > 1 {
			spec.Fallback = recognizers[1]
		}
		specs = append(specs, spec)
	}

	if ttsKey != "" && ttsBaseURL != "" {
		specs = append(specs, capability.Spec{
			Kind:        models.CapSpeechSynthesize,
			Class:       models.ClassFast,
			Description: "Text to speech",
			Primary:     SynthesizeHandler(NewTTSClient(ttsBaseURL, ttsKey, ttsModel, ttsVoice, nil)),
		})
	}
	return specs
}
