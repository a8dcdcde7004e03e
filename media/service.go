package media

import (
	"context"
	"io"
	"mime"
	"strings"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/posts"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxImagesPerPost is the most images an app.bsky.embed.images embed may hold.
const MaxImagesPerPost = 4

// MaxImageBytes is the largest blob the server accepts for a post image.
const MaxImageBytes = 1_000_000

var (
	ErrNotAnImage    = errors.New("content type is not an image")
	ErrEmptyImage    = errors.New("image is empty")
	ErrImageTooLarge = errors.New("image exceeds 1MB")
	ErrImageCount    = errors.New("a post holds between 1 and 4 images")
)

// Uploader sends raw bytes to an authenticated XRPC procedure.
type Uploader interface {
	Upload(ctx context.Context, nsid, contentType string, data []byte, out any) error
}

// PostCreator is the part of posts.Service used to publish the post carrying the images.
type PostCreator interface {
	CreatePost(ctx context.Context, post *atproto.Post) (*atproto.CreateRecordResponse, error)
}

var _ PostCreator = (*posts.Service)(nil)

// ImageUpload is one image of a multi-image post.
type ImageUpload struct {
	Data        io.Reader
	ContentType string
	Alt         string
}

type Service struct {
	uploader Uploader
	posts    PostCreator
	logger   zerolog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(uploader Uploader, postCreator PostCreator, options ...ServiceOption) (*Service, error) {
	if uploader == nil {
		return nil, errors.New("[media.NewService] uploader is required")
	}
	if postCreator == nil {
		return nil, errors.New("[media.NewService] post creator is required")
	}
	s := &Service{
		uploader: uploader,
		posts:    postCreator,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// UploadImage reads data and uploads it as a blob. The returned reference is what an
// images embed points at.
func (s *Service) UploadImage(ctx context.Context, data io.Reader, contentType string) (*atproto.BlobRef, error) {
	mediaType, err := imageMediaType(contentType)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrEmptyImage
	}
	payload, err := io.ReadAll(io.LimitReader(data, MaxImageBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UploadImage] reading image")
	}
	if len(payload) == 0 {
		return nil, ErrEmptyImage
	}
	if len(payload) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	var resp atproto.UploadBlobResponse
	if err := s.uploader.Upload(ctx, atproto.UploadBlobNSID, contentType, payload, &resp); err != nil {
		s.logger.Error().Err(err).Str("mime_type", mediaType).Msg("Failed to upload image")
		return nil, errors.Wrap(err, "[Service.UploadImage] uploadBlob failed")
	}

	blob := resp.Blob
	if blob.Type == "" {
		blob.Type = atproto.BlobType
	}
	if blob.MimeType == "" {
		blob.MimeType = mediaType
	}
	if blob.Size == 0 {
		blob.Size = len(payload)
	}
	s.logger.Debug().Str("cid", blob.Ref.Link).Int("size", blob.Size).Msg("Image uploaded")
	return &blob, nil
}

// CreatePostWithImage uploads one image and posts text with it attached.
func (s *Service) CreatePostWithImage(ctx context.Context, text string, data io.Reader, contentType, alt string) (*atproto.CreateRecordResponse, error) {
	return s.CreatePostWithImages(ctx, text, []ImageUpload{{Data: data, ContentType: contentType, Alt: alt}})
}

// CreatePostWithImages uploads the images concurrently and posts text with them attached
// in the given order. Nothing is posted if any upload fails.
func (s *Service) CreatePostWithImages(ctx context.Context, text string, images []ImageUpload) (*atproto.CreateRecordResponse, error) {
	if len(images) == 0 || len(images) > MaxImagesPerPost {
		return nil, ErrImageCount
	}
	for _, image := range images {
		if _, err := imageMediaType(image.ContentType); err != nil {
			return nil, err
		}
	}

	embedded := make([]atproto.Image, len(images))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, image := range images {
		i, image := i, image
		group.Go(func() error {
			blob, err := s.UploadImage(groupCtx, image.Data, image.ContentType)
			if err != nil {
				return errors.Wrapf(err, "[Service.CreatePostWithImages] image %d", i+1)
			}
			embedded[i] = atproto.Image{Alt: image.Alt, Image: *blob}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return s.posts.CreatePost(ctx, &atproto.Post{
		Text:   text,
		Facets: posts.DetectFacets(text),
		Embed:  atproto.ImagesEmbed(embedded...),
	})
}

func imageMediaType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", errors.Wrapf(ErrNotAnImage, "%q", contentType)
	}
	return mediaType, nil
}
