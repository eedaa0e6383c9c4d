package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mama upadła na ziemię", "mama upadla na ziemie"},
		{"ĄĆĘŁŃÓŚŹŻ", "acelnoszz"},
		{"zażółć gęślą jaźń", "zazolc gesla jazn"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestWords(t *testing.T) {
	w := Words("Bierze leki: Polpryna, polpryna!")
	assert.Len(t, w, 3)
	assert.Contains(t, w, "polpryna")
	assert.Contains(t, w, "leki")
}

func TestJaccard(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		assert.Equal(t, 1.0, Jaccard("Choruje na cukrzycę", "choruje na cukrzyce"))
	})
	t.Run("disjoint", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard("cukrzyca typu dwa", "chodzi o lasce"))
	})
	t.Run("partial overlap", func(t *testing.T) {
		// {ma, 85, lat} vs {ma, 86, lat}: 2 shared of 4
		assert.InDelta(t, 0.5, Jaccard("ma 85 lat", "ma 86 lat"), 1e-9)
	})
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard("", ""))
		assert.Equal(t, 0.0, Jaccard("", "coś"))
	})
}
