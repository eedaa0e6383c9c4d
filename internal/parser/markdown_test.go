package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `---
key: fall
order: 2
keywords:
  - upadek
  - upadła
---
# Upadek

## Questions

1. Czy podopieczny stracił przytomność?
2. Gdzie dokładnie boli?

## Prompt

Jesteś asystentem.
Fakty: {facts_json}
`

type meta struct {
	Key      string   `yaml:"key"`
	Order    int      `yaml:"order"`
	Keywords []string `yaml:"keywords"`
}

func TestParse(t *testing.T) {
	var m meta
	doc, err := Parse(sample, &m)
	require.NoError(t, err)

	assert.Equal(t, meta{Key: "fall", Order: 2, Keywords: []string{"upadek", "upadła"}}, m)
	assert.Equal(t, "Upadek", doc.Title)
	require.Len(t, doc.Sections, 3)

	questions, ok := doc.Section("questions")
	require.True(t, ok)
	assert.Equal(t, 2, questions.Level)
	assert.Equal(t, 3, questions.Line)
	assert.Equal(t, "# Upadek > ## Questions", questions.Path)
	assert.Equal(t, []string{"Czy podopieczny stracił przytomność?", "Gdzie dokładnie boli?"}, ListItems(questions.Content))

	prompt, ok := doc.Section("Prompt")
	require.True(t, ok)
	assert.Equal(t, "Jesteś asystentem.\nFakty: {facts_json}", prompt.Content)

	_, ok = doc.Section("nope")
	assert.False(t, ok)
}

func TestParse_CRLF(t *testing.T) {
	var m meta
	doc, err := Parse("---\r\nkey: x\r\n---\r\n# T\r\ntext\r\n", &m)
	require.NoError(t, err)
	assert.Equal(t, "x", m.Key)
	assert.Equal(t, "T", doc.Title)
}

func TestParse_WithoutFrontmatter(t *testing.T) {
	m := meta{Key: "unchanged"}
	doc, err := Parse("# Title\n\ntext\n", &m)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", m.Key)
	assert.Equal(t, "Title", doc.Title)
	assert.Equal(t, "# Title\n\ntext\n", doc.Body)
}

func TestParse_EmptyFrontmatter(t *testing.T) {
	doc, err := Parse("---\n---\n# T\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title)
}

func TestParse_UnclosedFrontmatter(t *testing.T) {
	doc, err := Parse("---\nkey: x\n# T\n", &meta{})
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title)
}

func TestParse_BrokenFrontmatter(t *testing.T) {
	_, err := Parse("---\nkey: [unclosed\n---\n# T\n", &meta{})
	assert.ErrorContains(t, err, "frontmatter")
}

func TestParse_IgnoresHeadingsInCodeBlocks(t *testing.T) {
	doc, err := Parse("## Prompt\n```\n# not a heading\n```\n", nil)
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Contains(t, doc.Sections[0].Content, "# not a heading")
	assert.Empty(t, doc.Title)
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		line  string
		level int
		text  string
	}{
		{"# Title", 1, "Title"},
		{"### Deep ###", 3, "Deep"},
		{"#nospace", 0, ""},
		{"####### seven", 0, ""},
		{"#", 0, ""},
		{"plain", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, text := headingLevel(tt.line)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.text, text)
		})
	}
}

func TestListItems(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ListItems("- a\n* b\n10. c\n+ d\n2) e\nplain line"))
	assert.Nil(t, ListItems("no items"))
}
