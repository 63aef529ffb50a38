package lines

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sifdata/sif/fsadapter"
)

func TestReadSpanBoundaryRule(t *testing.T) {
	mem := afero.NewMemMapFs()
	fs := fsadapter.New(mem)
	content := "alpha\nbravo\ncharlie\ndelta\n"
	require.NoError(t, afero.WriteFile(mem, "/in.txt", []byte(content), 0644))

	info, err := fs.FileSize("/in.txt")
	require.NoError(t, err)
	require.True(t, info.Seekable)

	const numWorkers = 3
	var collected []string
	for rank := 0; rank < numWorkers; rank++ {
		a, err := Assign([]fsadapter.Info{info}, numWorkers, rank)
		require.NoError(t, err)
		for _, span := range a.Spans {
			lines, err := ReadSpan(fs, span)
			require.NoError(t, err)
			collected = append(collected, lines...)
		}
	}
	require.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, collected)
}

func TestAssignWholeFilesForCompressed(t *testing.T) {
	infos := []fsadapter.Info{
		{Path: "/a.gz", Size: 100, Seekable: false},
		{Path: "/b.gz", Size: 100, Seekable: false},
		{Path: "/c.gz", Size: 100, Seekable: false},
	}
	seen := map[string]int{}
	for rank := 0; rank < 2; rank++ {
		a, err := Assign(infos, 2, rank)
		require.NoError(t, err)
		for _, p := range a.WholeFiles {
			seen[p]++
		}
	}
	require.Len(t, seen, 3)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}
}
