// Package narrator validates submissions and orchestrates the rewrite and
// synthesis calls that turn user text into a stored narration.
package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/echoverse-service/internal/core"
)

// Recognized tone labels and their rewrite-prompt phrases.
const (
	ToneNeutral     = "Neutral"
	ToneSuspenseful = "Suspenseful"
	ToneInspiring   = "Inspiring"

	DefaultTone = ToneNeutral
)

// Recognized voice labels and the default selection.
const (
	VoiceAllison = "Allison (en-US)"
	VoiceLisa    = "Lisa (en-US)"
	VoiceMichael = "Michael (en-US)"
	VoiceKate    = "Kate (en-GB)"

	DefaultVoice = VoiceAllison
)

const (
	textFileExt  = ".txt"
	audioFileExt = ".mp3"

	promptFormat = "Rewrite the following text while preserving its meaning, " +
		"style, and structure, but adjust it to a %s tone. " +
		"Keep the language clear and natural.\n\nText:\n%s"
)

var tonePhrases = map[string]string{
	ToneNeutral:     "neutral and clear",
	ToneSuspenseful: "suspenseful and dramatic",
	ToneInspiring:   "inspiring and motivational",
}

var voiceIDs = map[string]string{
	VoiceAllison: "en-US_AllisonV3Voice",
	VoiceLisa:    "en-US_LisaV3Voice",
	VoiceMichael: "en-US_MichaelV3Voice",
	VoiceKate:    "en-GB_KateV3Voice",
}

// Display order for the submission form.
var (
	toneOrder  = []string{ToneNeutral, ToneSuspenseful, ToneInspiring}
	voiceOrder = []string{VoiceAllison, VoiceLisa, VoiceMichael, VoiceKate}
)

// ToneLabels returns the recognized tone labels in display order.
func ToneLabels() []string {
	labels := make([]string, len(toneOrder))
	copy(labels, toneOrder)

	return labels
}

// VoiceLabels returns the recognized voice labels in display order.
func VoiceLabels() []string {
	labels := make([]string, len(voiceOrder))
	copy(labels, voiceOrder)

	return labels
}

// SubmitRequest carries the raw form input of one submission.
type SubmitRequest struct {
	// FileName and FileData describe the optional uploaded file. The file
	// is used only when its name carries the recognized text extension.
	FileName string
	FileData []byte

	// PastedText is the textarea fallback when no usable file is present.
	PastedText string

	Tone  string
	Voice string
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Narration core.Narration

	// Truncated reports that the input exceeded the configured maximum
	// length and was cut down to it. Non-fatal; the caller surfaces it
	// as a warning.
	Truncated bool
}

// Service drives one submission to completion: validate, rewrite,
// synthesize, store audio. No retries anywhere; every failure is terminal
// for the attempt, and no partial narration is ever produced.
type Service struct {
	rewriter      core.Rewriter
	synthesizer   core.Synthesizer
	blobs         core.BlobStore
	maxTextLength int
	log           *logger.Logger
	now           func() time.Time
}

// New creates a submission service.
func New(
	rewriter core.Rewriter,
	synthesizer core.Synthesizer,
	blobs core.BlobStore,
	maxTextLength int,
	log *logger.Logger,
) *Service {
	return &Service{
		rewriter:      rewriter,
		synthesizer:   synthesizer,
		blobs:         blobs,
		maxTextLength: maxTextLength,
		log:           log,
		now:           time.Now,
	}
}

// MaxTextLength returns the configured input limit in characters.
func (s *Service) MaxTextLength() int {
	return s.maxTextLength
}

// Submit validates and normalizes the input, rewrites it in the resolved
// tone, synthesizes audio with the resolved voice, and returns the completed
// narration. The rewrite call short-circuits synthesis on failure.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	text := resolveText(req)
	if text == "" {
		return SubmitResult{}, fmt.Errorf(
			"%w: please provide input via file upload or text area",
			core.ErrInvalidInput,
		)
	}

	text, truncated := s.truncate(text)

	tone := resolveTone(req.Tone)
	voice := resolveVoice(req.Voice)

	prompt := fmt.Sprintf(promptFormat, tonePhrases[tone], text)

	s.log.Info("Rewriting %d characters in %s tone", len([]rune(text)), tone)

	rewritten, err := s.rewriter.Rewrite(ctx, prompt)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("rewrite failed: %w", err)
	}

	s.log.Info("Synthesizing audio with voice %s", voiceIDs[voice])

	audio, err := s.synthesizer.Synthesize(ctx, rewritten, voiceIDs[voice])
	if err != nil {
		return SubmitResult{}, fmt.Errorf("synthesis failed: %w", err)
	}

	narrationID := uuid.NewString()
	audioKey := narrationID + audioFileExt

	err = s.blobs.Upload(ctx, audioKey, audio)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to store audio for %s: %w", narrationID, err)
	}

	narration := core.Narration{
		ID:            narrationID,
		OriginalText:  text,
		RewrittenText: rewritten,
		Tone:          tone,
		Voice:         voice,
		AudioKey:      audioKey,
		CreatedAt:     s.now(),
	}

	return SubmitResult{Narration: narration, Truncated: truncated}, nil
}

// resolveText prefers an uploaded file carrying the recognized text
// extension over pasted text. File bytes are decoded as UTF-8 with invalid
// sequences dropped. The result is trimmed of surrounding whitespace.
func resolveText(req SubmitRequest) string {
	if req.FileName != "" && strings.HasSuffix(strings.ToLower(req.FileName), textFileExt) {
		return strings.TrimSpace(strings.ToValidUTF8(string(req.FileData), ""))
	}

	return strings.TrimSpace(req.PastedText)
}

// truncate cuts the text down to the configured maximum length, counted in
// characters rather than bytes so a multi-byte rune is never split.
func (s *Service) truncate(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= s.maxTextLength {
		return text, false
	}

	return string(runes[:s.maxTextLength]), true
}

// resolveTone falls back to the default for unrecognized or absent labels.
func resolveTone(label string) string {
	if _, ok := tonePhrases[label]; ok {
		return label
	}

	return DefaultTone
}

// resolveVoice falls back to the default for unrecognized or absent labels.
func resolveVoice(label string) string {
	if _, ok := voiceIDs[label]; ok {
		return label
	}

	return DefaultVoice
}
