package facts

import (
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		a, b models.ExtractedFact
		want bool
	}{
		{
			name: "same tag identical normalized values",
			a:    models.ExtractedFact{Tags: []string{"leki"}, Value: "Bierze Metforminę"},
			b:    models.ExtractedFact{Tags: []string{"LEKI"}, Value: "bierze metformine"},
			want: true,
		},
		{
			name: "same tag disjoint words",
			a:    models.ExtractedFact{Tags: []string{"leki"}, Value: "Bierze metforminę"},
			b:    models.ExtractedFact{Tags: []string{"leki"}, Value: "Lubi szachy"},
			want: false,
		},
		{
			name: "identical values without shared tag",
			a:    models.ExtractedFact{Tags: []string{"hobby"}, Value: "Lubi szachy"},
			b:    models.ExtractedFact{Tags: []string{"ward"}, Value: "Lubi szachy"},
			want: false,
		},
		{
			name: "below threshold",
			a:    models.ExtractedFact{Tags: []string{"x"}, Value: "mama lubi rano pić kawę"},
			b:    models.ExtractedFact{Tags: []string{"x"}, Value: "mama lubi wieczorem pić herbatę"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicate(tt.a, tt.b))
		})
	}
}

func TestDedup(t *testing.T) {
	known := []models.Fact{{Tags: []string{"rodzina"}, Value: "Ma córkę Annę"}}
	candidates := []models.ExtractedFact{
		{Tags: []string{"rodzina"}, Value: "ma córkę annę"},
		{Tags: []string{"hobby"}, Value: "Lubi ogród"},
		{Tags: []string{"hobby", "ward"}, Value: "Lubi ogród"},
		{Tags: []string{"leki"}, Value: "Bierze donepezil"},
	}

	got := Dedup(candidates, known)
	assert.Equal(t, []models.ExtractedFact{
		{Tags: []string{"hobby"}, Value: "Lubi ogród"},
		{Tags: []string{"leki"}, Value: "Bierze donepezil"},
	}, got)
}
