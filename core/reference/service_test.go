package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferences(t *testing.T) {
	reply := "```json\n" + `[
		{"title": "Molecular Biology of the Cell", "authors": ["Alberts, B.", "Johnson, A."], "year": 2014,
		 "source": "Garland Science", "citation": "Alberts, B., & Johnson, A. (2014). Molecular Biology of the Cell."},
		{"title": "  ", "authors": "nobody"},
		{"title": "Photosynthesis", "authors": "Blankenship, R.", "year": "2021", "source": "Wiley"}
	]` + "\n```"

	refs, err := parseReferences(reply, "note-1", StyleAPA)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "Alberts, B., Johnson, A.", refs[0].Authors)
	assert.Equal(t, 2014, refs[0].Year)
	assert.Equal(t, "note-1", refs[0].NoteID)
	assert.Equal(t, StyleAPA, refs[0].Style)
	assert.Equal(t, 0, refs[0].Position)

	assert.Equal(t, 2021, refs[1].Year)
	assert.Equal(t, 1, refs[1].Position)
	assert.Equal(t, "Blankenship, R. (2021). Photosynthesis. Wiley.", refs[1].Citation)
}

func TestParseReferencesWrapped(t *testing.T) {
	refs, err := parseReferences(`{"references": [{"title": "T", "citation": "C"}]}`, "n", StyleIEEE)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "C", refs[0].Citation)
}

func TestParseReferencesEmpty(t *testing.T) {
	for _, reply := range []string{"", "no idea", "[]", `[{"title": ""}]`} {
		_, err := parseReferences(reply, "n", StyleAPA)
		assert.Equal(t, ErrNoReferences, err, reply)
	}
}

func TestStyleValid(t *testing.T) {
	for _, s := range []Style{StyleAPA, StyleMLA, StyleChicago, StyleHarvard, StyleIEEE} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Style("vancouver").Valid())
}
