package atproto

import "time"

// RecordTimeFormat is the createdAt layout used for records (UTC, millisecond precision).
const RecordTimeFormat = "2006-01-02T15:04:05.000Z"

// Post is an app.bsky.feed.post record as composed by callers.
type Post struct {
	Text   string    `json:"text"`
	Facets []Facet   `json:"facets,omitempty"`
	Embed  *Embed    `json:"embed,omitempty"`
	Reply  *ReplyRef `json:"reply,omitempty"`
}

// PostRecord is the record body written to the repository.
type PostRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Facets    []Facet   `json:"facets,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
}

// NewPostRecord stamps a post with its lexicon type and creation time.
func NewPostRecord(post *Post, createdAt time.Time) *PostRecord {
	return &PostRecord{
		Type:      PostCollection,
		Text:      post.Text,
		CreatedAt: createdAt.UTC().Format(RecordTimeFormat),
		Facets:    post.Facets,
		Embed:     post.Embed,
		Reply:     post.Reply,
	}
}

// ReplyRef points a reply at its thread root and direct parent.
type ReplyRef struct {
	Root   PostRef `json:"root"`
	Parent PostRef `json:"parent"`
}

// PostRef is a strong reference to a post.
type PostRef struct {
	URI string `json:"uri"`
	Cid string `json:"cid"`
}

type CreateRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

// CreateRecordResponse identifies the record that was written.
type CreateRecordResponse struct {
	URI string `json:"uri"`
	Cid string `json:"cid"`
}

type DeleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Rkey       string `json:"rkey"`
}
