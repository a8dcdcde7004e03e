package atproto

// BlobRef references an uploaded blob from inside a record.
type BlobRef struct {
	Type     string   `json:"$type"`
	Ref      BlobLink `json:"ref"`
	MimeType string   `json:"mimeType"`
	Size     int      `json:"size"`
}

type BlobLink struct {
	Link string `json:"$link"`
}

// UploadBlobResponse is returned by com.atproto.repo.uploadBlob.
type UploadBlobResponse struct {
	Blob BlobRef `json:"blob"`
}
