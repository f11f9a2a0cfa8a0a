package index

import (
	"context"
	"strings"

	"mediadex/internal/model"
)

// CaptionSource is the visual material a caption is generated from: a single
// image, or a set of frames sampled from a video. One combination function
// consumes both variants instead of type-branching through the pipeline.
type CaptionSource interface {
	isCaptionSource()
}

// ImageSource captions a single image.
type ImageSource struct {
	Data []byte
}

// VideoSource captions a video through sampled frames, ordered by offset.
type VideoSource struct {
	Frames [][]byte
}

func (ImageSource) isCaptionSource() {}
func (VideoSource) isCaptionSource() {}

// CaptionOutcome is the explicit result of caption generation, so callers
// and tests can tell a real caption from a fallback.
type CaptionOutcome struct {
	Text       string
	Origin     model.CaptionOrigin
	FramesUsed int // Frames that produced a caption (0 for images and fallbacks)
}

// generateCaption produces one narrative caption for the source. Per-frame
// captioning failures skip that frame; when no visual material yields a
// caption, the text is synthesized from the file's name and path.
func generateCaption(ctx context.Context, captioner Captioner, rec *model.FileRecord, src CaptionSource, logger Logger) CaptionOutcome {
	switch src := src.(type) {
	case ImageSource:
		if len(src.Data) == 0 {
			break
		}
		text, err := captioner.Caption(ctx, src.Data)
		if err != nil {
			logger.Warn("captioning image failed", "path", rec.Path, "error", err)
			break
		}
		return CaptionOutcome{Text: strings.TrimSpace(text), Origin: model.CaptionGenerated}

	case VideoSource:
		var parts []string
		for i, frame := range src.Frames {
			text, err := captioner.Caption(ctx, frame)
			if err != nil {
				logger.Warn("captioning frame failed", "path", rec.Path, "frame", i, "error", err)
				continue
			}
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			break
		}
		return CaptionOutcome{
			Text:       joinFrameCaptions(parts),
			Origin:     model.CaptionGenerated,
			FramesUsed: len(parts),
		}
	}

	return CaptionOutcome{Text: fallbackCaption(rec), Origin: model.CaptionFallback}
}

// joinFrameCaptions concatenates per-frame captions in order into one
// narrative description.
func joinFrameCaptions(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts, ", then ")
}

// fallbackCaption synthesizes a caption from the file's name and parent
// folder when no caption could be generated.
func fallbackCaption(rec *model.FileRecord) string {
	name := rec.Name
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	words := splitWords(name)

	if folder := lastPathSegment(rec.ParentPath); folder != "" {
		words = append(splitWords(folder), words...)
	}

	kind := "file"
	switch rec.FileType {
	case model.FileTypeImage:
		kind = "photo"
	case model.FileTypeVideo:
		kind = "video"
	}

	if len(words) == 0 {
		return kind
	}
	return kind + " of " + strings.Join(words, " ")
}

// splitWords breaks a filename-like token on common separators.
func splitWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

func lastPathSegment(p string) string {
	if p == "" {
		return ""
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
