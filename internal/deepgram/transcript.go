package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTranscript is returned when a stored transcript does not contain
// the expected text payload. Retrying will not produce one.
var ErrNoTranscript = errors.New("no transcript text found")

// TranscriptText extracts the plain-text transcript from a stored
// provider-tagged response. This is the one place that knows the nested
// path for the deepgram_v1 format; a provider format change is an edit
// here, not a hunt for scattered path literals.
func TranscriptText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: transcript is empty", ErrNoTranscript)
	}

	var doc struct {
		ProviderFormat string `json:"_provider_format"`
		Results        struct {
			Channels []struct {
				Alternatives []struct {
					Paragraphs struct {
						Transcript string `json:"transcript"`
					} `json:"paragraphs"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoTranscript, err)
	}
	if doc.ProviderFormat != ProviderFormat {
		return "", fmt.Errorf("%w: unknown provider format %q", ErrNoTranscript, doc.ProviderFormat)
	}

	channels := doc.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("%w: response had no alternatives", ErrNoTranscript)
	}
	text := strings.TrimSpace(channels[0].Alternatives[0].Paragraphs.Transcript)
	if text == "" {
		return "", fmt.Errorf("%w: transcript not at expected path", ErrNoTranscript)
	}
	return text, nil
}
