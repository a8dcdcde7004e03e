package atproto

// Embed is either an images embed or an external link card, discriminated by Type.
type Embed struct {
	Type     string    `json:"$type"`
	Images   []Image   `json:"images,omitempty"`
	External *External `json:"external,omitempty"`
}

type Image struct {
	Alt   string  `json:"alt"`
	Image BlobRef `json:"image"`
}

// External is a link card.
type External struct {
	URI         string   `json:"uri"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Thumb       *BlobRef `json:"thumb,omitempty"`
}

func ImagesEmbed(images ...Image) *Embed {
	return &Embed{Type: ImagesEmbedType, Images: images}
}

func ExternalEmbed(external External) *Embed {
	return &Embed{Type: ExternalEmbedType, External: &external}
}
