package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSignatures(t *testing.T) {
	sigs := DefaultSignatures()

	require.NotEmpty(t, sigs.GraphQLQueryHashes)
	require.NotEmpty(t, sigs.ImageSelectors)
	require.NotEmpty(t, sigs.CDNHosts)

	// The chain must end in a bare img so harvesting always has a floor.
	require.Equal(t, "img", sigs.ImageSelectors[len(sigs.ImageSelectors)-1])
}

func TestLoadSignatures_PartialFileFallsBackPerSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigs.yaml")
	content := `version: 2
graphql_query_hashes:
  - deadbeefdeadbeefdeadbeefdeadbeef
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	sigs, err := LoadSignatures(path)
	require.NoError(t, err)

	require.Equal(t, 2, sigs.Version)
	require.Equal(t, []string{"deadbeefdeadbeefdeadbeefdeadbeef"}, sigs.GraphQLQueryHashes)

	// Sections the file omits keep the built-in values.
	defaults := DefaultSignatures()
	require.Equal(t, defaults.ImageSelectors, sigs.ImageSelectors)
	require.Equal(t, defaults.CDNHosts, sigs.CDNHosts)
}

func TestLoadSignatures_MissingFile(t *testing.T) {
	_, err := LoadSignatures(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestExtractionSignatures_MatchesCDN(t *testing.T) {
	sigs := DefaultSignatures()

	require.True(t, sigs.MatchesCDN("https://scontent-lhr8-1.cdninstagram.com/v/t51/photo.jpg"))
	require.True(t, sigs.MatchesCDN("https://SCONTENT.example/photo.jpg"))
	require.False(t, sigs.MatchesCDN("https://evil.example.com/photo.jpg"))
	require.False(t, sigs.MatchesCDN(""))
}
