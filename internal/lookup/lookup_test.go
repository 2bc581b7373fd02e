package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexstats/internal/zonal"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookup.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "code,label,extra\n1,Forest,x\n2,Water,y\nnotanumber,Bad,z\n3,Urban\n")
	tbl, err := LoadCSV(path)
	require.NoError(t, err)
	// 第三列被忽略，无法解析码的行被跳过
	assert.Equal(t, []Row{
		{Code: 1, Label: "Forest"},
		{Code: 2, Label: "Water"},
		{Code: 3, Label: "Urban"},
	}, tbl.Rows)
}

func TestLoadCSVEmpty(t *testing.T) {
	_, err := LoadCSV(writeCSV(t, ""))
	assert.Error(t, err)
}

func TestValidateDuplicateCode(t *testing.T) {
	tbl := &Table{Rows: []Row{{Code: 1, Label: "a"}, {Code: 2, Label: "b"}, {Code: 1, Label: "c"}}}
	assert.Error(t, tbl.Validate())

	ok := &Table{Rows: []Row{{Code: 1, Label: "a"}, {Code: 2, Label: "b"}}}
	assert.NoError(t, ok.Validate())
}

func TestNormalizeFractions(t *testing.T) {
	tbl := &Table{Rows: []Row{{Code: 1, Label: "Forest"}, {Code: 2, Label: "Water"}}}
	counts := []zonal.CategoryCount{
		{CellKey: "cell", Code: 1, Count: 9},
		{CellKey: "cell", Code: 2, Count: 7},
	}
	out := Normalize(counts, tbl)
	require.Len(t, out, 2)
	assert.Equal(t, OutputRow{CellKey: "cell", Code: 1, Label: "Forest", Fraction: 0.5625}, out[0])
	assert.Equal(t, OutputRow{CellKey: "cell", Code: 2, Label: "Water", Fraction: 0.4375}, out[1])

	sum := out[0].Fraction + out[1].Fraction
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestNormalizePerCellIndependent(t *testing.T) {
	counts := []zonal.CategoryCount{
		{CellKey: "a", Code: 1, Count: 3},
		{CellKey: "a", Code: 2, Count: 1},
		{CellKey: "b", Code: 1, Count: 10},
	}
	out := Normalize(counts, &Table{})
	require.Len(t, out, 3)
	assert.InDelta(t, 0.75, out[0].Fraction, 1e-12)
	assert.InDelta(t, 0.25, out[1].Fraction, 1e-12)
	assert.InDelta(t, 1.0, out[2].Fraction, 1e-12)
}

func TestNormalizeZeroTotalGuarded(t *testing.T) {
	counts := []zonal.CategoryCount{{CellKey: "empty", Code: 1, Count: 0}}
	out := Normalize(counts, &Table{Rows: []Row{{Code: 1, Label: "Forest"}}})
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Fraction)
}

// 连接未命中的码保留空标签而不是丢行
func TestNormalizeJoinMiss(t *testing.T) {
	tbl := &Table{Rows: []Row{{Code: 1, Label: "Forest"}}}
	counts := []zonal.CategoryCount{
		{CellKey: "cell", Code: 1, Count: 1},
		{CellKey: "cell", Code: 99, Count: 3},
	}
	out := Normalize(counts, tbl)
	require.Len(t, out, 2)
	assert.Equal(t, "Forest", out[0].Label)
	assert.Equal(t, "", out[1].Label)
	assert.InDelta(t, 0.75, out[1].Fraction, 1e-12)
}

func TestNormalizeNilTable(t *testing.T) {
	counts := []zonal.CategoryCount{{CellKey: "cell", Code: 1, Count: 4}}
	out := Normalize(counts, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].Label)
	assert.Equal(t, 1.0, out[0].Fraction)
}
