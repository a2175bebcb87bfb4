package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// WhisperProvider transcribes audio locally via whisper.cpp's cgo bindings.
// The model is loaded lazily on first Transcribe call and kept resident,
// since loading a ggml model file is expensive relative to a single request.
type WhisperProvider struct {
	mu        sync.Mutex
	modelPath string
	model     whisper.Model
}

func NewWhisperProvider() *WhisperProvider {
	modelPath := os.Getenv("RAGSMITH_WHISPER_MODEL")
	return &WhisperProvider{modelPath: modelPath}
}

func (p *WhisperProvider) Name() string { return "whisper" }

func (p *WhisperProvider) loadModel() (whisper.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		return p.model, nil
	}
	if p.modelPath == "" {
		return nil, coreerrors.CredentialError("RAGSMITH_WHISPER_MODEL", nil)
	}
	m, err := whisper.New(p.modelPath)
	if err != nil {
		return nil, coreerrors.FatalProviderError("whisper", fmt.Errorf("load model %s: %w", p.modelPath, err))
	}
	p.model = m
	return m, nil
}

func (p *WhisperProvider) Complete(context.Context, string, CompleteRequest) (*CompleteResponse, error) {
	return nil, coreerrors.FatalProviderError("whisper", fmt.Errorf("completion is not supported by this provider"))
}

func (p *WhisperProvider) Embed(context.Context, string, EmbedRequest) (*EmbedResponse, error) {
	return nil, coreerrors.FatalProviderError("whisper", fmt.Errorf("embedding is not supported by this provider"))
}

func (p *WhisperProvider) Transcribe(ctx context.Context, _ string, req TranscribeRequest) (*TranscribeResponse, error) {
	model, err := p.loadModel()
	if err != nil {
		return nil, err
	}

	samples, err := decodeWAV(req.Audio)
	if err != nil {
		return nil, coreerrors.ValidationError(fmt.Sprintf("decode audio: %v", err), err)
	}

	whisperCtx, err := model.NewContext()
	if err != nil {
		return nil, coreerrors.FatalProviderError("whisper", err)
	}

	if err := whisperCtx.Process(samples, nil, nil, nil); err != nil {
		return nil, coreerrors.FatalProviderError("whisper", err)
	}

	var sb strings.Builder
	for {
		segment, err := whisperCtx.NextSegment()
		if err != nil {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return &TranscribeResponse{Text: sb.String()}, nil
}

func (p *WhisperProvider) CountTokens(_ string, text string) int {
	return countTokens(text)
}

func (p *WhisperProvider) ContextWindow(model string) int {
	return contextWindowFor("whisper/" + model)
}

func (p *WhisperProvider) ValidateCredentials() error {
	if p.modelPath == "" {
		return coreerrors.CredentialError("RAGSMITH_WHISPER_MODEL", nil)
	}
	if _, err := os.Stat(p.modelPath); err != nil {
		return coreerrors.FatalProviderError("whisper", fmt.Errorf("model file %s: %w", p.modelPath, err))
	}
	return nil
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// decodeWAV reads 16 or 32 bit PCM WAV bytes into mono float32 samples at
// whatever sample rate the file carries. Callers are expected to supply
// 16kHz audio; whisper.cpp degrades gracefully on other rates.
func decodeWAV(data []byte) ([]float32, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("audio payload too short to be a WAV file")
	}

	var header wavHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	audioData := data[44:]
	if int(header.Subchunk2Size) <= len(audioData) {
		audioData = audioData[:header.Subchunk2Size]
	}

	var samples []float32
	switch header.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(audioData); i += 2 {
			v := int16(binary.LittleEndian.Uint16(audioData[i : i+2]))
			samples = append(samples, float32(v)/32768.0)
		}
	case 32:
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := binary.LittleEndian.Uint32(audioData[i : i+4])
			samples = append(samples, math.Float32frombits(bits))
		}
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	if header.NumChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}

	return samples, nil
}
