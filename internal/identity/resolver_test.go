package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebidash/pkg/contracts/domain"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "John Smith", b: "John Smith", want: 1},
		{name: "case and punctuation ignored", a: "J. SMITH", b: "j smith", want: 1},
		{name: "initial vs full first name", a: "J. Smith", b: "John Smith", want: 14.0 / 17.0},
		{name: "dropped letter", a: "Jon Smith", b: "J. Smith", want: 14.0 / 16.0},
		// matching blocks, not the longest common subsequence (which would give 6/20)
		{name: "scattered letters", a: "James Mory", b: "John Smith", want: 4.0 / 20.0},
		{name: "both blank", a: "", b: "", want: 1},
		{name: "one blank", a: "", b: "Smith", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Similarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestResolver_DeterministicClustering(t *testing.T) {
	names := []string{"J. Smith", "John Smith", "Jon Smith", "A. Jones"}

	mapping, entities := Resolve(names, WithThreshold(0.8))
	require.Len(t, entities, 2)

	assert.Equal(t, "J. Smith", entities[0].Canonical)
	assert.Equal(t, []string{"J. Smith", "John Smith", "Jon Smith"}, entities[0].Aliases)
	assert.Equal(t, "A. Jones", entities[1].Canonical)

	again, _ := Resolve(names, WithThreshold(0.8))
	assert.Equal(t, mapping, again)
}

func TestResolver_OrderDependence(t *testing.T) {
	// "Jon Smith" and "John Smith" are close, "J. Smith" joins whichever is canonical
	forward, _ := Resolve([]string{"John Smith", "Jon Smith", "J. Smith"})
	assert.Equal(t, "John Smith", forward["J. Smith"])

	reverse, _ := Resolve([]string{"Jon Smith", "John Smith", "J. Smith"})
	assert.Equal(t, "Jon Smith", reverse["J. Smith"])
}

func TestResolver_BlankNames(t *testing.T) {
	r := NewResolver()

	for _, blank := range []string{"", "   ", "..."} {
		canon, ok := r.Resolve(blank)
		assert.False(t, ok)
		assert.Empty(t, canon)
	}
	assert.Zero(t, r.Len())

	mapping := r.ResolveAll([]string{"", "Ada Lovelace", "  "})
	assert.Equal(t, map[string]string{"Ada Lovelace": "Ada Lovelace"}, mapping)
}

func TestResolver_NeverReassigns(t *testing.T) {
	r := NewResolver()

	first, ok := r.Resolve("Maria Garcia")
	require.True(t, ok)
	_, _ = r.Resolve("Mario Garcia")
	_, _ = r.Resolve("Maria Garcia-Lopez")

	again, ok := r.Resolve("  Maria Garcia ")
	require.True(t, ok)
	assert.Equal(t, first, again)

	canon, ok := r.Canonical("Maria Garcia")
	require.True(t, ok)
	assert.Equal(t, first, canon)

	_, ok = r.Canonical("Unknown Person")
	assert.False(t, ok)
}

func TestResolver_TieBreak(t *testing.T) {
	// "ab" scores 2/3 against both "a" and "b"
	names := []string{"b", "a", "ab"}

	tests := []struct {
		name string
		tb   TieBreak
		want string
	}{
		{name: "first seen", tb: TieBreakFirstSeen, want: "b"},
		{name: "lexical", tb: TieBreakLexical, want: "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapping, _ := Resolve(names, WithThreshold(0.6), WithTieBreak(tt.tb))
			assert.Equal(t, tt.want, mapping["ab"])
		})
	}

	lex, _ := Resolve([]string{"a", "b", "ab"}, WithThreshold(0.6), WithTieBreak(TieBreakLexical))
	assert.Equal(t, "b", lex["ab"])
	first, _ := Resolve([]string{"a", "b", "ab"}, WithThreshold(0.6), WithTieBreak(TieBreakFirstSeen))
	assert.Equal(t, "a", first["ab"])
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		in     string
		want   TieBreak
		wantOK bool
	}{
		{in: "", want: TieBreakFirstSeen, wantOK: true},
		{in: "first-seen", want: TieBreakFirstSeen, wantOK: true},
		{in: "Lexical", want: TieBreakLexical, wantOK: true},
		{in: "random", want: TieBreakFirstSeen, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTieBreak(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "lexical", TieBreakLexical.String())
}

func TestConsolidateProjects(t *testing.T) {
	table := &domain.Table{
		Source:  domain.SourceProductivity,
		Columns: []string{ColumnProject, ColumnPI, ColumnDeliverables, "Program"},
		Rows: []domain.Row{
			{ColumnProject: "Algae Oil", ColumnPI: "John Smith", ColumnDeliverables: "2 publications", "Program": "Feedstocks"},
			{ColumnProject: "Algae Oil", ColumnPI: "John Smith", ColumnDeliverables: "2 publications, 1 report", "Program": "Feedstocks"},
			{ColumnProject: "Soil Carbon", ColumnPI: "Jon Smith", ColumnDeliverables: "", "Program": "Soils"},
			{ColumnProject: "Enzymes", ColumnPI: "", ColumnDeliverables: "poster", "Program": "Conversion"},
			{ColumnProject: "Lignin", ColumnPI: "A. Jones", ColumnDeliverables: "", "Program": "Conversion"},
		},
	}

	t.Run("first row wins", func(t *testing.T) {
		res := ConsolidateProjects(table, ProjectOptions{})
		require.Equal(t, 3, res.Table.Len())
		assert.Equal(t, 1, res.Duplicates)
		assert.Equal(t, 1, res.Blank)
		assert.Equal(t, "2 publications", res.Table.Rows[0][ColumnDeliverables])
		assert.Equal(t, "John Smith", res.Table.Rows[1][ColumnPI])
		assert.Equal(t, "John Smith", res.Mapping["Jon Smith"])
		assert.Len(t, res.Entities, 2)
	})

	t.Run("longest deliverables wins", func(t *testing.T) {
		res := ConsolidateProjects(table, ProjectOptions{Dedup: DedupLongestDeliverables})
		require.Equal(t, 3, res.Table.Len())
		assert.Equal(t, "2 publications, 1 report", res.Table.Rows[0][ColumnDeliverables])
	})

	t.Run("no dedup", func(t *testing.T) {
		res := ConsolidateProjects(table, ProjectOptions{Dedup: DedupNone})
		assert.Equal(t, 4, res.Table.Len())
		assert.Zero(t, res.Duplicates)
	})

	t.Run("source untouched", func(t *testing.T) {
		_ = ConsolidateProjects(table, ProjectOptions{})
		assert.Equal(t, "Jon Smith", table.Rows[2][ColumnPI])
	})
}
