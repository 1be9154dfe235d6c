// Package lyrics turns a flat, timestamped transcript into readable,
// line- and stanza-broken lyrics text.
package lyrics

import (
	"strings"
	"unicode/utf8"

	"lyrix/internal/types"
)

// Config holds the formatting thresholds. Zero values are not filled in
// here; use DefaultConfig and override.
type Config struct {
	MaxLineChars      int
	LineGapSeconds    float64
	StanzaGapSeconds  float64
	UppercaseBreak    bool
	UppercaseMinChars int
	UppercaseMinWords int
	RepeatThreshold   int
}

// DefaultConfig returns the thresholds tuned for typical sung material.
func DefaultConfig() Config {
	return Config{
		MaxLineChars:      60,
		LineGapSeconds:    0.8,
		StanzaGapSeconds:  2.5,
		UppercaseBreak:    true,
		UppercaseMinChars: 18,
		UppercaseMinWords: 4,
		RepeatThreshold:   2,
	}
}

// Output is the formatted lyrics plus the word list that produced them.
// Words is nil when only segment-level timing was available.
type Output struct {
	Lyrics string
	Words  []types.Word
}

// internal word with short field names to keep the walk readable
type word struct {
	text  string
	start float64
	end   float64
}

// Format converts segments into lyrics text. When word-level timing is
// present it drives line breaking; otherwise each segment is treated as an
// atomic line and only gap rules apply between segments.
func Format(segments []types.Segment, cfg Config) Output {
	if hasWordDetail(segments) {
		return formatWords(segments, cfg)
	}
	return formatSegments(segments, cfg)
}

func hasWordDetail(segments []types.Segment) bool {
	for _, seg := range segments {
		if len(seg.Words) > 0 {
			return true
		}
	}
	return false
}

// formatWords is the word-level path. Break decisions are made before each
// word, in strict priority order: stanza gap, line gap, length wrap, then
// the uppercase fallback.
func formatWords(segments []types.Segment, cfg Config) Output {
	var flat []word
	for _, seg := range segments {
		for _, w := range seg.Words {
			flat = append(flat, word{text: w.Text, start: w.Start, end: w.End})
		}
	}
	flat = cleanWords(flat)

	var (
		lines    []string
		cur      strings.Builder
		curChars int
		curWords int
		prevEnd  float64
	)

	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			curChars, curWords = 0, 0
		}
	}
	stanza := func() {
		flush()
		if len(lines) > 0 && lines[len(lines)-1] != "" {
			lines = append(lines, "")
		}
	}

	for i, w := range flat {
		if isPunctuationOnly(w.text) {
			// attaches to the previous token, no space, no word count
			cur.WriteString(w.text)
			curChars += utf8.RuneCountInString(w.text)
			prevEnd = w.end
			continue
		}

		if i > 0 && cur.Len() > 0 {
			gap := w.start - prevEnd
			switch {
			case gap >= cfg.StanzaGapSeconds:
				stanza()
			case gap >= cfg.LineGapSeconds:
				flush()
			case curChars > cfg.MaxLineChars:
				flush()
			case cfg.UppercaseBreak && startsUpper(w.text) &&
				(curChars >= cfg.UppercaseMinChars || curWords >= cfg.UppercaseMinWords):
				flush()
			}
		}

		if cur.Len() > 0 {
			cur.WriteByte(' ')
			curChars++
		}
		cur.WriteString(w.text)
		curChars += utf8.RuneCountInString(w.text)
		curWords++
		prevEnd = w.end
	}
	flush()

	lines = collapseRepeats(lines, cfg.RepeatThreshold)

	out := Output{Lyrics: strings.Join(lines, "\n")}
	for _, w := range flat {
		out.Words = append(out.Words, types.Word{Text: w.text, Start: w.start, End: w.end})
	}
	return out
}

// formatSegments is the fallback path: each segment's text is atomic and
// only the gap rules apply between segments.
func formatSegments(segments []types.Segment, cfg Config) Output {
	var (
		lines   []string
		cur     strings.Builder
		prevEnd float64
	)
	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}

	for _, seg := range segments {
		text := CleanText(seg.Text)
		if text == "" {
			continue
		}
		if cur.Len() > 0 {
			gap := seg.Start - prevEnd
			switch {
			case gap >= cfg.StanzaGapSeconds:
				flush()
				if len(lines) > 0 && lines[len(lines)-1] != "" {
					lines = append(lines, "")
				}
			case gap >= cfg.LineGapSeconds:
				flush()
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(text)
		prevEnd = seg.End
	}
	flush()

	lines = collapseRepeats(lines, cfg.RepeatThreshold)
	return Output{Lyrics: strings.Join(lines, "\n")}
}

// collapseRepeats trims runs of identical consecutive lines down to the
// threshold. Sustained notes make ASR emit the same line many times over;
// genuinely repeated structure survives because a stanza break (blank line)
// resets the run.
func collapseRepeats(lines []string, threshold int) []string {
	if threshold <= 0 || len(lines) == 0 {
		return trimBlank(lines)
	}
	out := make([]string, 0, len(lines))
	run := 0
	for _, line := range lines {
		if line == "" {
			run = 0
			out = append(out, line)
			continue
		}
		if len(out) > 0 && out[len(out)-1] == line {
			run++
		} else {
			run = 1
		}
		if run > threshold {
			continue
		}
		out = append(out, line)
	}
	return trimBlank(out)
}

// trimBlank drops leading and trailing blank lines.
func trimBlank(lines []string) []string {
	start := 0
	for start < len(lines) && lines[start] == "" {
		start++
	}
	end := len(lines)
	for end > start && lines[end-1] == "" {
		end--
	}
	return lines[start:end]
}
