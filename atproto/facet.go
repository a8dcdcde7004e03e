package atproto

// Facet annotates a byte range of post text with rich-text features.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a UTF-8 byte range; ByteStart is inclusive and ByteEnd exclusive.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is one of mention, link or tag, discriminated by Type. Only the field
// belonging to Type is set.
type FacetFeature struct {
	Type string `json:"$type"`
	Did  string `json:"did,omitempty"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

func MentionFeature(did string) FacetFeature {
	return FacetFeature{Type: MentionFacetType, Did: did}
}

func LinkFeature(uri string) FacetFeature {
	return FacetFeature{Type: LinkFacetType, URI: uri}
}

func TagFeature(tag string) FacetFeature {
	return FacetFeature{Type: TagFacetType, Tag: tag}
}
