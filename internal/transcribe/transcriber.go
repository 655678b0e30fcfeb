// Package transcribe converts a finished audio file to text.
// One request, one response; retry policy is left to the caller.
package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Model is the transcription model used for voice notes.
const Model = "gpt-4o-mini-transcribe"

// Compile-time interface implementation check.
var _ Transcriber = (*OpenAITranscriber)(nil)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// audioClient is the slice of the OpenAI client we use.
type audioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAITranscriber transcribes audio via the OpenAI API.
type OpenAITranscriber struct {
	client audioClient
}

// NewOpenAITranscriber creates a transcriber backed by the given client.
func NewOpenAITranscriber(client audioClient) *OpenAITranscriber {
	return &OpenAITranscriber{client: client}
}

// Transcribe sends the audio file and returns the transcript text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    Model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	return strings.TrimSpace(resp.Text), nil
}
