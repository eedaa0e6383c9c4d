package scenario

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return NewMatcher(c)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "fall", all[0].Key)
	assert.Equal(t, "confusion", all[1].Key)
	assert.Equal(t, "chest_pain", all[2].Key)

	fall, ok := c.Get("fall")
	require.True(t, ok)
	assert.Equal(t, "Upadek", fall.Name)
	assert.Len(t, fall.Keywords, 12)
	require.Len(t, fall.Questions, 5)
	assert.Equal(t, "Czy podopieczny stracił przytomność?", fall.Questions[0])
	assert.Contains(t, fall.Prompt, "{facts_json}")
	assert.Contains(t, fall.RenderPrompt(`[{"value":"x"}]`), `[{"value":"x"}]`)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLoadOverridesByKey(t *testing.T) {
	extra := fstest.MapFS{
		"fall.md": {Data: []byte("---\nkey: fall\nname: Inny upadek\norder: 1\nkeywords: [gleba]\n---\n## Questions\n- Co się stało?\n")},
		"notes.txt": {Data: []byte("ignored")},
	}
	seed, err := fs.Sub(seedFS, "seed")
	require.NoError(t, err)
	merged, err := Load(seed, extra)
	require.NoError(t, err)
	assert.Len(t, merged.All(), 3)
	fall, ok := merged.Get("fall")
	require.True(t, ok)
	assert.Equal(t, "Inny upadek", fall.Name)
	assert.Equal(t, []string{"Co się stało?"}, fall.Questions)
}

func TestLoadRejectsIncompleteDefinitions(t *testing.T) {
	tests := map[string]string{
		"no key":       "---\nname: X\nkeywords: [a]\n---\n## Questions\n- q\n",
		"no keywords":  "---\nkey: x\n---\n## Questions\n- q\n",
		"no questions": "---\nkey: x\nkeywords: [a]\n---\n## Prompt\np\n",
		"bad yaml":     "---\nkey: [x\n---\n## Questions\n- q\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(fstest.MapFS{"x.md": {Data: []byte(content)}})
			assert.Error(t, err)
		})
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(0))
	assert.InDelta(t, 0.5, Confidence(1), 1e-9)
	assert.InDelta(t, 0.8, Confidence(2), 1e-9)
	assert.Equal(t, 1.0, Confidence(3))
	assert.Equal(t, 1.0, Confidence(10))
}

func TestMatch(t *testing.T) {
	m := defaultMatcher(t)

	tests := []struct {
		name    string
		text    string
		key     string
		keyword string
	}{
		{"fall with diacritics", "mama upadła na ziemię", "fall", "upadł"},
		{"fall without diacritics", "Tata UPADL w lazience", "fall", "upadł"},
		{"confusion", "Babcia jest splątana i nie poznaje mnie", "confusion", "nie poznaje"},
		{"chest pain", "Dziadek ma duszność", "chest_pain", "duszność"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.text)
			require.True(t, got.Matched)
			assert.Equal(t, tt.key, got.Scenario.Key)
			assert.Equal(t, tt.keyword, got.Keyword)
			assert.GreaterOrEqual(t, got.Confidence, 0.5)
		})
	}
}

func TestMatchNoHit(t *testing.T) {
	got := defaultMatcher(t).Match("podopieczny nie chce jeść obiadu")
	assert.False(t, got.Matched)
	assert.Equal(t, 0.0, got.Confidence)
	assert.Empty(t, got.Scenario.Key)
}

func TestMatchHighestConfidenceWins(t *testing.T) {
	// one fall keyword vs two chest pain keywords
	got := defaultMatcher(t).Match("upadek, potem duszność i ból w klatce")
	require.True(t, got.Matched)
	assert.Equal(t, "chest_pain", got.Scenario.Key)
}

func TestMatchTieKeepsFirstScenario(t *testing.T) {
	got := defaultMatcher(t).Match("upadek i duszność")
	require.True(t, got.Matched)
	assert.Equal(t, "fall", got.Scenario.Key)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}
