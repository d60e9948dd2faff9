package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/task"
	openai "github.com/sashabaranov/go-openai"
)

// maxAudioBytes caps the size of a synthesized clip read into memory.
const maxAudioBytes = 64 << 20

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

// Synthesizer implements task.Synthesizer with the audio speech endpoint.
type Synthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	format openai.SpeechResponseFormat
	speed  float64
	logger *slog.Logger
}

var _ task.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a Synthesizer from the speech configuration.
func NewSynthesizer(cfg config.SpeechConfig, logger *slog.Logger) (*Synthesizer, error) {
	if cfg.Model == "" || cfg.Voice == "" {
		return nil, fmt.Errorf("%w: speech model and voice are required", domain.ErrValidation)
	}
	format := cfg.Format
	if format == "" {
		format = "mp3"
	}
	if _, ok := contentTypes[format]; !ok {
		return nil, fmt.Errorf("%w: unsupported audio format %q", domain.ErrValidation, format)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Synthesizer{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		model:  openai.SpeechModel(cfg.Model),
		voice:  openai.SpeechVoice(cfg.Voice),
		format: openai.SpeechResponseFormat(format),
		speed:  cfg.Speed,
		logger: logger.With(slog.String("component", "openai_synthesizer")),
	}, nil
}

// Synthesize implements task.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts task.SpeechOptions) (*task.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot synthesize empty text", domain.ErrValidation)
	}

	voice := s.voice
	if opts.Voice != "" {
		voice = openai.SpeechVoice(opts.Voice)
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: s.format,
		Speed:          s.speed,
	})
	if err != nil {
		return nil, mapError("failed to synthesize speech", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, fmt.Errorf("synthesized audio exceeds %d bytes", maxAudioBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to synthesize speech: empty audio")
	}

	contentType := contentTypes[string(s.format)]
	if ct := resp.Header().Get("Content-Type"); strings.HasPrefix(ct, "audio/") {
		contentType = ct
	}

	s.logger.Debug("synthesized speech",
		slog.String("voice", string(voice)),
		slog.Int("chars", len(text)),
		slog.Int("bytes", len(data)))

	return &task.Audio{Data: data, ContentType: contentType}, nil
}
