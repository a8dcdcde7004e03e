package atproto

// XRPC method identifiers used by the client.
const (
	CreateSessionNSID  = "com.atproto.server.createSession"
	RefreshSessionNSID = "com.atproto.server.refreshSession"
	CreateRecordNSID   = "com.atproto.repo.createRecord"
	DeleteRecordNSID   = "com.atproto.repo.deleteRecord"
	UploadBlobNSID     = "com.atproto.repo.uploadBlob"
)

// Lexicon type identifiers written into records.
const (
	PostCollection    = "app.bsky.feed.post"
	MentionFacetType  = "app.bsky.richtext.facet#mention"
	LinkFacetType     = "app.bsky.richtext.facet#link"
	TagFacetType      = "app.bsky.richtext.facet#tag"
	ImagesEmbedType   = "app.bsky.embed.images"
	ExternalEmbedType = "app.bsky.embed.external"
	BlobType          = "blob"
)
