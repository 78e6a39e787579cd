package workflows

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sbbp/pipeline/internal/anthropic"
	"github.com/sbbp/pipeline/internal/deepgram"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

const (
	summarizeSystemPrompt = "Your task is to summarize Youtube video transcripts. Clearly explain the topics discussed, and notable or surprising details, and the general sentiment around them."
	summarizePromptPrefix = "The video transcript follows:"
	// The assistant prefix biases the completion into answering directly.
	summarizeAssistantPrefix = "The summary of the above transcript is:"
)

// SummarizeStage sends the transcript to an LLM and persists the summary.
// Committing the summary marks the video ready, the pipeline's terminal
// transition. Safe to re-run: it simply overwrites the summary.
type SummarizeStage struct {
	store store.Store
	llm   *anthropic.Client
}

// NewSummarizeStage wires the summarize stage.
func NewSummarizeStage(st store.Store, llm *anthropic.Client) *SummarizeStage {
	return &SummarizeStage{store: st, llm: llm}
}

// Name returns the stage name.
func (s *SummarizeStage) Name() string { return pipeline.StageSummarize }

// Execute runs the summarize stage.
func (s *SummarizeStage) Execute(wctx *Context, raw json.RawMessage) ([]pipeline.NextJob, error) {
	var payload pipeline.SummarizePayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	return nil, s.run(wctx, payload)
}

func (s *SummarizeStage) run(wctx *Context, payload pipeline.SummarizePayload) error {
	ctx := wctx.Ctx
	log.Printf("[%s] Summarizing video %s", wctx.RunID, payload.ID)

	video, err := s.store.Get(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", payload.ID, err)
	}

	// A missing or malformed transcript is not transient; retrying this
	// stage cannot produce one.
	text, err := deepgram.TranscriptText(video.Transcript)
	if err != nil {
		return err
	}

	summary, err := s.llm.Complete(ctx,
		summarizeSystemPrompt,
		summarizePromptPrefix+"\n\n"+text,
		summarizeAssistantPrefix,
	)
	if err != nil {
		return fmt.Errorf("summarize video %s: %w", payload.ID, err)
	}

	if err := s.store.RecordSummary(ctx, payload.ID, strings.TrimSpace(summary)); err != nil {
		return fmt.Errorf("record summary: %w", err)
	}

	log.Printf("[%s] Video %s is ready", wctx.RunID, payload.ID)
	return nil
}
