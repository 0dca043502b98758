package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

func categoryTable() *domain.Table {
	return &domain.Table{
		Source:  domain.SourceBerkeley,
		Columns: []string{"Legend", "2019", "2020"},
		Rows: []domain.Row{
			{"Legend": "Awarded Grant", "2019": 100.0, "2020": 0.0},
			{"Legend": "Research (Berkeley only)", "2019": 40.0, "2020": 60.0},
			{"Legend": "Awarded Grant", "2019": 250.50, "2020": 10.0},
			{"Legend": "Industrial Research Funds", "2019": 5.0, "2020": 5.0},
			{"Legend": "Awarded Grant", "2019": "1,000", "2020": nil},
			{"Legend": "Dormant", "2019": 0.0, "2020": 0.0},
		},
	}
}

func rawTotals(t *domain.Table, cols ...string) map[string]float64 {
	out := make(map[string]float64)
	for _, row := range t.Rows {
		for _, c := range cols {
			f, _ := row[c].(float64)
			if s, ok := row[c].(string); ok && s == "1,000" {
				f = 1000
			}
			out[c] += f
		}
	}
	return out
}

func TestMerge_Conservation(t *testing.T) {
	table := categoryTable()

	res, err := Merge(table, Options{Key: []string{"Legend"}, Numeric: []string{"2019", "2020"}, KeepZero: true})
	require.NoError(t, err)

	grant, ok := res.Row("Awarded Grant")
	require.True(t, ok)
	assert.InDelta(t, 1350.50, grant.Value("2019"), 1e-9)
	assert.Equal(t, 3, grant.Contributors)
	assert.Equal(t, domain.ProvenanceObserved, grant.Provenance.Kind)

	want := rawTotals(table, "2019", "2020")
	got := res.Totals()
	for col, v := range want {
		assert.InDelta(t, v, got[col], 1e-9, col)
	}
	assert.Equal(t, []string{"Awarded Grant", "Research (Berkeley only)", "Industrial Research Funds", "Dormant"},
		keys(res.Rows))
}

func TestMerge_ZeroActivityFilter(t *testing.T) {
	tests := []struct {
		name     string
		keepZero bool
		wantRows int
		wantDrop []string
	}{
		{name: "drops all-zero rows", wantRows: 3, wantDrop: []string{"Dormant"}},
		{name: "opt out keeps them", keepZero: true, wantRows: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Merge(categoryTable(), Options{
				Key:      []string{"Legend"},
				Numeric:  []string{"2019", "2020"},
				KeepZero: tt.keepZero,
			})
			require.NoError(t, err)
			assert.Len(t, res.Rows, tt.wantRows)
			assert.Equal(t, tt.wantDrop, res.DroppedZero)
		})
	}
}

func TestMerge_ZeroFilterDropsOffsettingRows(t *testing.T) {
	table := &domain.Table{
		Source:  domain.SourceFunding,
		Columns: []string{"PI", "2019 Actual", "2020 Actual"},
		Rows: []domain.Row{
			{"PI": "Smith", "2019 Actual": 100.0, "2020 Actual": -100.0},
			{"PI": "Jones", "2019 Actual": 100.0, "2020 Actual": -40.0},
		},
	}
	opts := Options{Key: []string{"PI"}, Numeric: []string{"2019 Actual", "2020 Actual"}}

	res, err := Merge(table, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jones"}, keys(res.Rows))
	assert.Equal(t, []string{"Smith"}, res.DroppedZero)

	opts.KeepZero = true
	kept, err := Merge(table, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Smith", "Jones"}, keys(kept.Rows))
	assert.Empty(t, kept.DroppedZero)
}

func TestRenameThenMerge(t *testing.T) {
	rename := map[string]string{"Research (Berkeley only)": "Industrial Research Funds"}
	opts := Options{Key: []string{"Legend"}, Numeric: []string{"2019", "2020"}}

	once, err := RenameThenMerge(categoryTable(), rename, opts)
	require.NoError(t, err)

	irf, ok := once.Row("Industrial Research Funds")
	require.True(t, ok)
	assert.InDelta(t, 45.0, irf.Value("2019"), 1e-9)
	assert.InDelta(t, 65.0, irf.Value("2020"), 1e-9)
	assert.Equal(t, 2, irf.Contributors)

	t.Run("idempotent", func(t *testing.T) {
		table := ToTable(domain.SourceBerkeley, once.Rows, []string{"Legend"}, []string{"2019", "2020"})
		twice, err := RenameThenMerge(table, rename, opts)
		require.NoError(t, err)

		require.Equal(t, keys(once.Rows), keys(twice.Rows))
		for i := range once.Rows {
			assert.Equal(t, once.Rows[i].Values, twice.Rows[i].Values)
		}
	})

	t.Run("chained mapping resolves to its end", func(t *testing.T) {
		chain := map[string]string{"A": "B", "B": "C", "C": "A"}
		assert.Equal(t, "C", resolveRename(chain, "A"))
		assert.Equal(t, "Z", resolveRename(chain, "Z"))
	})
}

func TestMerge_Labels(t *testing.T) {
	table := &domain.Table{
		Source:  domain.SourceBerkeley,
		Columns: []string{"Legend", "2019"},
		Rows: []domain.Row{
			{"Legend": "EBI Squared", "2019": 10.0},
			{"Legend": "NSF", "2019": 99.0},
			{"Legend": "EBI Squared", "2019": 3.0},
			{"Legend": "Scown Gift", "2019": 1.0},
		},
	}

	res, err := Merge(table, Options{
		Key:         []string{"Legend"},
		Numeric:     []string{"2019"},
		Occurrences: map[string][]string{"EBI Squared": {"", "EBI Recharge"}},
		Exclude:     []string{"NSF"},
		Display:     map[string]string{"Scown Gift": "Scown"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"EBI Squared", "EBI Recharge", "Scown Gift"}, keys(res.Rows))
	assert.Equal(t, 1, res.Excluded)
	recharge, _ := res.Row("EBI Recharge")
	assert.InDelta(t, 3.0, recharge.Value("2019"), 1e-9)
	scown, _ := res.Row("Scown Gift")
	assert.Equal(t, "Scown", scown.Attr("Legend"))
}

func TestMaskAndReplace(t *testing.T) {
	table := &domain.Table{
		Source:  domain.SourceAdministrative,
		Columns: []string{"Type", "Gift", "2019 Actual"},
		Rows: []domain.Row{
			{"Type": "Awarded Grant A", "Gift": "BP", "2019 Actual": 100.0},
			{"Type": "Awarded Grant B", "Gift": "BP", "2019 Actual": 200.0},
			{"Type": "Operations", "Gift": "BP", "2019 Actual": 50.0},
		},
	}

	res, err := MaskAndReplace(table,
		Options{Key: []string{"Type"}, Numeric: []string{"2019 Actual"}},
		Override{
			Key:      "Awarded Grants",
			Column:   "Type",
			Contains: "awarded grant",
			Values:   map[string]float64{"2019 Actual": 500},
			Source:   "award letters",
			Note:     "authoritative award total",
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"Operations", "Awarded Grants"}, keys(res.Rows))
	assert.Equal(t, 2, res.Masked)

	ov, ok := res.Row("Awarded Grants")
	require.True(t, ok)
	assert.True(t, ov.Provenance.IsOverride())
	assert.InDelta(t, 500.0, ov.Value("2019 Actual"), 1e-9)
	assert.Equal(t, 2, ov.Provenance.Replaced)
	assert.InDelta(t, 300.0, ov.Provenance.ObservedValues["2019 Actual"], 1e-9)
	assert.Equal(t, "Awarded Grants", ov.Attr("Type"))
	assert.Equal(t, "award letters", ov.Provenance.Source)

	ops, _ := res.Row("Operations")
	assert.False(t, ops.Provenance.IsOverride())

	t.Run("inserted even when nothing matches", func(t *testing.T) {
		res, err := MaskAndReplace(table,
			Options{Key: []string{"Type"}, Numeric: []string{"2019 Actual"}},
			Override{Key: "Manual", Match: MatchLabel("Type", "missing"), Values: map[string]float64{"2019 Actual": 7}},
		)
		require.NoError(t, err)
		manual, ok := res.Row("Manual")
		require.True(t, ok)
		assert.Zero(t, manual.Provenance.Replaced)
		assert.Len(t, res.Rows, 4)
	})

	t.Run("code matcher masks like the config form", func(t *testing.T) {
		res, err := MaskAndReplace(table,
			Options{Key: []string{"Type"}, Numeric: []string{"2019 Actual"}},
			Override{Key: "Awarded Grants", Match: MatchContains("Type", "AWARDED"), Values: map[string]float64{"2019 Actual": 500}},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"Operations", "Awarded Grants"}, keys(res.Rows))
		assert.Equal(t, 2, res.Masked)
	})
}

func TestOverride_Matches(t *testing.T) {
	row := domain.Row{"Type": "Awarded Grant A", "Gift": "BP"}

	tests := []struct {
		name     string
		override Override
		want     bool
	}{
		{"equals", Override{Column: "Gift", Equals: []string{"Shell", "BP"}}, true},
		{"equals is exact", Override{Column: "Gift", Equals: []string{"bp"}}, false},
		{"contains ignores case", Override{Column: "Type", Contains: "GRANT"}, true},
		{"contains misses", Override{Column: "Type", Contains: "operations"}, false},
		{"no column", Override{Contains: "grant"}, false},
		{"match func wins", Override{Column: "Type", Contains: "grant", Match: MatchLabel("Gift", "Shell")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.override.Matches(row))
		})
	}
}

func TestMerge_CompoundKey(t *testing.T) {
	table := &domain.Table{
		Source:  domain.SourceFunding,
		Columns: []string{"PI", "Type", "2019 Actual"},
		Rows: []domain.Row{
			{"PI": "Smith", "Type": "Research", "2019 Actual": 1.0},
			{"PI": "Smith", "Type": "Sub-award", "2019 Actual": 2.0},
			{"PI": "Smith", "Type": "Research", "2019 Actual": 3.0},
		},
	}

	res, err := Merge(table, Options{Key: []string{"PI", "Type"}, Numeric: []string{"2019 Actual"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.JoinKey("Smith", "Research"), res.Rows[0].Key)
	assert.InDelta(t, 4.0, res.Rows[0].Value("2019 Actual"), 1e-9)
	assert.Equal(t, "Research", res.Rows[0].Attr("Type"))
}

func TestMerge_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantType apperrors.ErrorType
	}{
		{name: "no key", opts: Options{Numeric: []string{"2019"}}, wantType: apperrors.ErrTypeValidation},
		{name: "missing key column", opts: Options{Key: []string{"Category"}}, wantType: apperrors.ErrTypeConfig},
		{name: "missing numeric column", opts: Options{Key: []string{"Legend"}, Numeric: []string{"2031"}}, wantType: apperrors.ErrTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(categoryTable(), tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
		})
	}
}

func keys(rows []domain.ConsolidatedRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}
