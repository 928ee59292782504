package compression

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memsvc/memory/internal/models"
)

func TestCompress_CodeStrategyStripsComments(t *testing.T) {
	code := `package main

// this is a comment
func main() {
	// another one
	println("hi")
}
`
	result := Compress(code, models.MemoryTypeTask, 0.9)
	assert.NotContains(t, result.Text, "this is a comment")
	assert.Contains(t, result.Text, "func main")
}

func TestCompress_CodeStrategyFallsBackToSkeleton(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("func handler")
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("() { doSomethingVeryLongHereToInflateSize() }\n")
	}
	code := "import \"fmt\"\n" + b.String()
	result := Compress(code, models.MemoryTypeError, 0.05)
	assert.LessOrEqual(t, len(result.Text), len(code))
}

func TestCompress_ConversationKeepsQuestionsAndKeywords(t *testing.T) {
	text := "hello there\nwhat time is it?\nthis is important to remember\nrandom filler line"
	result := Compress(text, models.MemoryTypeConversation, 0.9)
	assert.Contains(t, result.Text, "what time is it?")
	assert.Contains(t, result.Text, "important")
}

func TestCompress_DocumentKeepsLeadAndHeaders(t *testing.T) {
	text := "This is the lead paragraph explaining the topic.\n\n## Summary\n\nThis is important: the key conclusion.\n\nSome filler paragraph without any marker words at all here."
	result := Compress(text, models.MemoryTypeDecision, 0.5)
	assert.Contains(t, result.Text, "lead paragraph")
	assert.Contains(t, result.Text, "## Summary")
}

func TestCompress_GenericFallsBackWhenNoSentences(t *testing.T) {
	result := Compress("", models.MemoryTypeInsight, 0.5)
	assert.Equal(t, "", result.Text)
	assert.Equal(t, 0, result.OriginalSize)
}

func TestCompress_ZeroOrNegativeRatioUsesDefault(t *testing.T) {
	text := "Some short text without special markers here at all."
	r1 := Compress(text, models.MemoryTypeInsight, 0)
	r2 := Compress(text, models.MemoryTypeInsight, DefaultTargetRatio)
	assert.Equal(t, r2.Text, r1.Text)
}

func TestCompress_MetricsPopulated(t *testing.T) {
	text := "This is important. This is also critical information that must be kept."
	result := Compress(text, models.MemoryTypeConversation, 0.9)
	assert.Equal(t, len(text), result.OriginalSize)
	assert.Equal(t, len(result.Text), result.CompressedSize)
	assert.GreaterOrEqual(t, result.CompressionRatio, 0.0)
	assert.GreaterOrEqual(t, result.Readability, 0.0)
	assert.LessOrEqual(t, result.Readability, 1.0)
}

func TestHierarchicalCompress_OlderItemsGetSmallerRatio(t *testing.T) {
	text := strings.Repeat("This is a sentence about important context. ", 20)
	items := []AgedItem{
		{Text: text, Type: models.MemoryTypeContext, AgeHours: 1},
		{Text: text, Type: models.MemoryTypeContext, AgeHours: 1000},
	}
	results := HierarchicalCompress(items, []float64{24, 168, 720}, 0.5)
	assert.Len(t, results, 2)
	assert.LessOrEqual(t, results[1].CompressedSize, results[0].CompressedSize)
}

func TestHierarchicalCompress_NonPositiveBaseRatioUsesDefault(t *testing.T) {
	items := []AgedItem{{Text: "hello world", Type: models.MemoryTypeInsight, AgeHours: 0}}
	r1 := HierarchicalCompress(items, nil, 0)
	r2 := HierarchicalCompress(items, nil, DefaultTargetRatio)
	assert.Equal(t, r2[0].Text, r1[0].Text)
}
