package posts

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jrsteele09/go-bsky-client/atproto"
)

var (
	mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9.]+)`)
	tagPattern     = regexp.MustCompile(`#([a-zA-Z0-9_]+)`)
	linkPattern    = regexp.MustCompile(`https?://\S+`)
)

// DetectFacets finds mentions, hashtags and links in text. Offsets are UTF-8 byte
// offsets, which is what the facet index expects. Mentions carry the handle in place of
// a DID since handles are not resolved.
func DetectFacets(text string) []atproto.Facet {
	var facets []atproto.Facet

	links := linkPattern.FindAllStringIndex(text, -1)
	for _, m := range links {
		facets = append(facets, atproto.Facet{
			Index:    atproto.ByteSlice{ByteStart: m[0], ByteEnd: m[1]},
			Features: []atproto.FacetFeature{atproto.LinkFeature(text[m[0]:m[1]])},
		})
	}
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		// A handle never ends in a dot; that one belongs to the sentence.
		handle := strings.TrimRight(text[m[2]:m[3]], ".")
		end := m[2] + len(handle)
		if handle == "" || insideLink(links, m[0], end) {
			continue
		}
		facets = append(facets, atproto.Facet{
			Index:    atproto.ByteSlice{ByteStart: m[0], ByteEnd: end},
			Features: []atproto.FacetFeature{atproto.MentionFeature(handle)},
		})
	}
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		if insideLink(links, m[0], m[1]) {
			continue
		}
		facets = append(facets, atproto.Facet{
			Index:    atproto.ByteSlice{ByteStart: m[0], ByteEnd: m[1]},
			Features: []atproto.FacetFeature{atproto.TagFeature(text[m[2]:m[3]])},
		})
	}

	sort.SliceStable(facets, func(i, j int) bool {
		return facets[i].Index.ByteStart < facets[j].Index.ByteStart
	})
	return facets
}

func insideLink(links [][]int, start, end int) bool {
	for _, link := range links {
		if start >= link[0] && end <= link[1] {
			return true
		}
	}
	return false
}
