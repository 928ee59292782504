// Package compression implements type-aware text summarization (C5): four
// strategies picked by memory type, plus hierarchical re-compression of
// aging memories.
package compression

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/memsvc/memory/internal/models"
)

// Result carries the compressed text alongside the metrics §4.5 says are
// reported but not load-bearing.
type Result struct {
	Text                string
	OriginalSize        int
	CompressedSize      int
	CompressionRatio    float64
	InformationRetention float64
	Readability          float64
	KeywordPreservation  float64
}

// DefaultTargetRatio is the ratio strategies aim for absent a caller override.
const DefaultTargetRatio = 0.3

var conversationKeywords = []string{"important", "critical", "must", "should", "need"}
var documentKeywords = []string{"summary", "conclusion", "important", "key", "main"}

// Compress dispatches to the strategy for t and returns the compressed text
// with size metrics filled in.
func Compress(text string, t models.MemoryType, targetRatio float64) Result {
	if targetRatio <= 0 {
		targetRatio = DefaultTargetRatio
	}
	original := len(text)

	var out string
	switch t {
	case models.MemoryTypeTask, models.MemoryTypeError:
		out = compressCode(text, targetRatio)
	case models.MemoryTypeConversation:
		out = compressConversation(text, targetRatio)
	case models.MemoryTypeContext, models.MemoryTypeDecision:
		out = compressDocument(text, targetRatio)
	default:
		out = compressGeneric(text, targetRatio)
	}

	return buildResult(text, out, original)
}

func buildResult(original, compressed string, originalSize int) Result {
	compressedSize := len(compressed)
	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(compressedSize) / float64(originalSize)
	}
	return Result{
		Text:                 compressed,
		OriginalSize:         originalSize,
		CompressedSize:       compressedSize,
		CompressionRatio:     ratio,
		InformationRetention: keywordRetention(original, compressed, documentKeywords),
		Readability:          readabilityScore(compressed),
		KeywordPreservation:  keywordRetention(original, compressed, conversationKeywords),
	}
}

var blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
var lineCommentRe = regexp.MustCompile(`(?m)(//|#).*$`)
var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)
var signatureRe = regexp.MustCompile(`(?m)^\s*(func|def|class|type|interface)\s+\S.*$`)
var importRe = regexp.MustCompile(`(?m)^\s*(import|require|use|package)\s+.*$`)

// compressCode strips comments and collapses whitespace; if that alone
// doesn't reach the target ratio it falls back to a skeleton of imports and
// the top-N signatures.
func compressCode(text string, targetRatio float64) string {
	stripped := blockCommentRe.ReplaceAllString(text, "")
	stripped = lineCommentRe.ReplaceAllString(stripped, "")
	stripped = whitespaceRe.ReplaceAllString(stripped, " ")
	stripped = blankLinesRe.ReplaceAllString(stripped, "\n\n")
	stripped = strings.TrimSpace(stripped)

	if len(text) == 0 || float64(len(stripped))/float64(len(text)) <= targetRatio {
		return stripped
	}

	imports := importRe.FindAllString(text, -1)
	sigs := signatureRe.FindAllString(text, -1)
	totalSigs := len(sigs)

	const topN = 10
	if len(sigs) > topN {
		sigs = sigs[:topN]
	}

	var b strings.Builder
	for _, imp := range imports {
		b.WriteString(strings.TrimSpace(imp))
		b.WriteString("\n")
	}
	if len(imports) > 0 {
		b.WriteString("\n")
	}
	for _, s := range sigs {
		b.WriteString(strings.TrimSpace(s))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n// %d declarations total\n", totalSigs))
	return b.String()
}

var questionMarkerRe = regexp.MustCompile(`\?\s*$`)
var roleMarkerRe = regexp.MustCompile(`(?i)^\s*(user|assistant|system|human|ai)\s*:`)

const elisionMarker = "... [elided] ..."

// compressConversation keeps lines that look like questions, role markers,
// or contain an urgency keyword; if the kept set is still too long it
// brackets head and tail fragments around an elision marker.
func compressConversation(text string, targetRatio float64) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if questionMarkerRe.MatchString(trimmed) || roleMarkerRe.MatchString(trimmed) || containsAnyKeyword(trimmed, conversationKeywords) {
			kept = append(kept, trimmed)
		}
	}

	joined := strings.Join(kept, "\n")
	if len(joined) > 0 && (len(text) == 0 || float64(len(joined))/float64(len(text)) <= targetRatio*2) {
		return joined
	}

	targetLen := int(math.Ceil(float64(len(text)) * targetRatio))
	half := targetLen / 2
	if half <= 0 || half*2 >= len(text) {
		return text
	}
	return strings.TrimSpace(text[:half]) + "\n" + elisionMarker + "\n" + strings.TrimSpace(text[len(text)-half:])
}

var headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+.*$`)
var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)

// compressDocument keeps the lead paragraph, up to five headers, and
// paragraphs matching summary-like keywords, truncated to the target length.
func compressDocument(text string, targetRatio float64) string {
	paragraphs := paragraphSplitRe.Split(text, -1)

	var lead string
	if len(paragraphs) > 0 {
		lead = strings.TrimSpace(paragraphs[0])
		if len(lead) > 200 {
			lead = lead[:200]
		}
	}

	headers := headerRe.FindAllString(text, -1)
	if len(headers) > 5 {
		headers = headers[:5]
	}

	var keyParagraphs []string
	for _, p := range paragraphs[minInt(1, len(paragraphs)):] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if containsAnyKeyword(p, documentKeywords) {
			keyParagraphs = append(keyParagraphs, p)
		}
	}

	var b strings.Builder
	b.WriteString(lead)
	for _, h := range headers {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(h))
	}
	for _, p := range keyParagraphs {
		b.WriteString("\n\n")
		b.WriteString(p)
	}

	out := strings.TrimSpace(b.String())
	targetLen := int(math.Ceil(float64(len(text)) * targetRatio))
	if targetLen > 0 && len(out) > targetLen {
		out = out[:targetLen]
	}
	return out
}

// compressGeneric sentence-splits via prose and strides across first,
// middle, and last sentences up to ceil(n*ratio) total.
func compressGeneric(text string, targetRatio float64) string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return truncateRatio(text, targetRatio)
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return truncateRatio(text, targetRatio)
	}

	n := len(sentences)
	keep := int(math.Ceil(float64(n) * targetRatio))
	if keep < 1 {
		keep = 1
	}
	if keep >= n {
		return text
	}

	picked := pickStride(n, keep)
	var b strings.Builder
	for i, idx := range picked {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(sentences[idx].Text))
	}
	return b.String()
}

// pickStride selects keep indices from [0,n) biased toward first, middle,
// and last, deduplicated and sorted.
func pickStride(n, keep int) []int {
	seen := map[int]bool{}
	var out []int
	add := func(i int) {
		if i >= 0 && i < n && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}

	add(0)
	add(n - 1)
	add(n / 2)

	step := n / (keep + 1)
	if step < 1 {
		step = 1
	}
	for i := step; len(out) < keep && i < n; i += step {
		add(i)
	}
	for i := 0; len(out) < keep && i < n; i++ {
		add(i)
	}

	sortInts(out)
	if len(out) > keep {
		out = out[:keep]
	}
	return out
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func truncateRatio(text string, ratio float64) string {
	targetLen := int(math.Ceil(float64(len(text)) * ratio))
	if targetLen <= 0 || targetLen >= len(text) {
		return text
	}
	return text[:targetLen]
}

func containsAnyKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func keywordRetention(original, compressed string, keywords []string) float64 {
	originalCount := 0
	compressedCount := 0
	lowerOrig := strings.ToLower(original)
	lowerComp := strings.ToLower(compressed)
	for _, k := range keywords {
		if strings.Contains(lowerOrig, k) {
			originalCount++
		}
		if strings.Contains(lowerComp, k) {
			compressedCount++
		}
	}
	if originalCount == 0 {
		return 1.0
	}
	return float64(compressedCount) / float64(originalCount)
}

// readabilityScore is a crude proxy: shorter average sentence length scores
// higher, clamped to [0,1].
func readabilityScore(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	if len(sentences) == 0 {
		return 1.0
	}
	avgLen := float64(len(text)) / float64(len(sentences))
	score := 1.0 - (avgLen / 200.0)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// AgedItem is one input to HierarchicalCompress: the text to compress, its
// type (for strategy selection), and its age in hours.
type AgedItem struct {
	Text     string
	Type     models.MemoryType
	AgeHours float64
}

// HierarchicalCompress re-compresses items more aggressively the older they
// are: level is the count of ageThresholds (hours, ascending) the item's age
// exceeds, and the target ratio shrinks by 0.7^level per level.
func HierarchicalCompress(items []AgedItem, ageThresholds []float64, baseRatio float64) []Result {
	if baseRatio <= 0 {
		baseRatio = DefaultTargetRatio
	}
	out := make([]Result, len(items))
	for i, item := range items {
		level := 0
		for _, threshold := range ageThresholds {
			if item.AgeHours > threshold {
				level++
			}
		}
		ratio := baseRatio * math.Pow(0.7, float64(level))
		out[i] = Compress(item.Text, item.Type, ratio)
	}
	return out
}
