package resolver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// ExtractionSignatures is the ranked, versioned set of provider-specific
// extraction knowledge: GraphQL query hashes, DOM selectors, and CDN
// hostnames. These rot as Instagram ships new frontends, so they live as
// data rather than control flow and can be replaced from a YAML file
// without touching any strategy.
type ExtractionSignatures struct {
	Version int `yaml:"version"`

	// GraphQLQueryHashes are tried in order against /graphql/query/.
	GraphQLQueryHashes []string `yaml:"graphql_query_hashes"`

	// ImageSelectors are tried in order against the rendered DOM, most
	// specific first, ending in a bare img fallback.
	ImageSelectors []string `yaml:"image_selectors"`

	// CDNHosts filter harvested element sources to Instagram-served media.
	CDNHosts []string `yaml:"cdn_hosts"`
}

// DefaultSignatures returns the built-in signature set.
func DefaultSignatures() *ExtractionSignatures {
	return &ExtractionSignatures{
		Version: 1,
		GraphQLQueryHashes: []string{
			"9f8827793ef34641b2fb195d4d41151c",
			"2b0673e0dc4580674a88d426fe00ea90",
			"477b65a610463740ccdb83135b2014db",
			"7c8a1055f3b71c8a61b280b7c8826d42",
		},
		ImageSelectors: []string{
			"img._aagt",
			"img[decoding='auto']",
			"img.FFVAD",
			"img.EmbeddedMediaImage",
			"img._aa-6",
			"img[sizes]",
			"img[srcset]",
			"img",
		},
		CDNHosts: []string{
			"scontent",
			"cdninstagram",
		},
	}
}

// LoadSignatures reads a signature set from a YAML file, falling back to
// the defaults for any section the file leaves empty.
func LoadSignatures(path string) (*ExtractionSignatures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signatures file: %w", err)
	}

	sigs := &ExtractionSignatures{}
	if err := yaml.Unmarshal(data, sigs); err != nil {
		return nil, fmt.Errorf("failed to parse signatures file: %w", err)
	}

	defaults := DefaultSignatures()
	if len(sigs.GraphQLQueryHashes) == 0 {
		sigs.GraphQLQueryHashes = defaults.GraphQLQueryHashes
	}
	if len(sigs.ImageSelectors) == 0 {
		sigs.ImageSelectors = defaults.ImageSelectors
	}
	if len(sigs.CDNHosts) == 0 {
		sigs.CDNHosts = defaults.CDNHosts
	}
	return sigs, nil
}

// MatchesCDN reports whether a harvested URL points at a known media CDN host.
func (s *ExtractionSignatures) MatchesCDN(url string) bool {
	lower := strings.ToLower(url)
	for _, host := range s.CDNHosts {
		if strings.Contains(lower, strings.ToLower(host)) {
			return true
		}
	}
	return false
}
