package posts

import (
	"context"
	"time"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/sessions"
	"github.com/pkg/errors"
	"github.com/rivo/uniseg"
	"github.com/rs/zerolog"
)

// MaxPostGraphemes is the longest post text the server accepts.
const MaxPostGraphemes = 300

var (
	ErrPostTooLong    = errors.New("post text exceeds 300 graphemes")
	ErrInvalidPostURI = errors.New("invalid post uri")
)

// Caller sends an authenticated XRPC procedure.
type Caller interface {
	Procedure(ctx context.Context, nsid string, in, out any) error
}

// SessionSource supplies the account that owns created records.
type SessionSource interface {
	CurrentSession() *sessions.Session
}

// Service creates and deletes app.bsky.feed.post records in the session's repo.
type Service struct {
	caller   Caller
	sessions SessionSource
	logger   zerolog.Logger
	nowTime  func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function used for createdAt (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(caller Caller, sessionSource SessionSource, options ...ServiceOption) (*Service, error) {
	if caller == nil {
		return nil, errors.New("[posts.NewService] caller is required")
	}
	if sessionSource == nil {
		return nil, errors.New("[posts.NewService] session source is required")
	}
	s := &Service{
		caller:   caller,
		sessions: sessionSource,
		logger:   zerolog.Nop(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// CreateTextPost posts text with mentions, hashtags and links turned into facets.
func (s *Service) CreateTextPost(ctx context.Context, text string) (*atproto.CreateRecordResponse, error) {
	return s.CreatePost(ctx, &atproto.Post{Text: text, Facets: DetectFacets(text)})
}

// CreatePost writes post to the current account's repo.
func (s *Service) CreatePost(ctx context.Context, post *atproto.Post) (*atproto.CreateRecordResponse, error) {
	if post == nil {
		return nil, errors.New("[Service.CreatePost] post is required")
	}
	if uniseg.GraphemeClusterCount(post.Text) > MaxPostGraphemes {
		return nil, ErrPostTooLong
	}
	did, err := s.repo()
	if err != nil {
		return nil, err
	}

	var resp atproto.CreateRecordResponse
	err = s.caller.Procedure(ctx, atproto.CreateRecordNSID, atproto.CreateRecordRequest{
		Repo:       did,
		Collection: atproto.PostCollection,
		Record:     atproto.NewPostRecord(post, s.nowTime()),
	}, &resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create post")
		return nil, errors.Wrap(err, "[Service.CreatePost] createRecord failed")
	}

	s.logger.Info().Str("uri", resp.URI).Msg("Post created")
	return &resp, nil
}

// CreateReply replies to parent, treating it as the root of the thread.
func (s *Service) CreateReply(ctx context.Context, parent atproto.PostRef, text string) (*atproto.CreateRecordResponse, error) {
	return s.CreateReplyInThread(ctx, parent, parent, text)
}

// CreateReplyInThread replies to parent within the thread that starts at root.
func (s *Service) CreateReplyInThread(ctx context.Context, root, parent atproto.PostRef, text string) (*atproto.CreateRecordResponse, error) {
	if parent.URI == "" || parent.Cid == "" || root.URI == "" || root.Cid == "" {
		return nil, errors.Wrap(ErrInvalidPostURI, "[Service.CreateReplyInThread] reply references need a uri and cid")
	}
	if _, err := atproto.ParseURI(parent.URI); err != nil {
		return nil, errors.Wrap(ErrInvalidPostURI, err.Error())
	}
	return s.CreatePost(ctx, &atproto.Post{
		Text:   text,
		Facets: DetectFacets(text),
		Reply:  &atproto.ReplyRef{Root: root, Parent: parent},
	})
}

// DeletePost deletes the post at uri, an at://repo/app.bsky.feed.post/rkey URI.
func (s *Service) DeletePost(ctx context.Context, uri string) error {
	parsed, err := atproto.ParseURI(uri)
	if err != nil {
		return errors.Wrap(ErrInvalidPostURI, err.Error())
	}
	if parsed.Collection != atproto.PostCollection {
		return errors.Wrapf(ErrInvalidPostURI, "%q is not a post", uri)
	}

	err = s.caller.Procedure(ctx, atproto.DeleteRecordNSID, atproto.DeleteRecordRequest{
		Repo:       parsed.Repo,
		Collection: parsed.Collection,
		Rkey:       parsed.Rkey,
	}, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("uri", uri).Msg("Failed to delete post")
		return errors.Wrap(err, "[Service.DeletePost] deleteRecord failed")
	}

	s.logger.Info().Str("uri", uri).Msg("Post deleted")
	return nil
}

func (s *Service) repo() (string, error) {
	current := s.sessions.CurrentSession()
	if current == nil {
		return "", sessions.ErrNotAuthenticated
	}
	return current.DID, nil
}
