package atproto

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidURI = errors.New("invalid at-uri")

const uriScheme = "at://"

// URI is a record address of the form at://{repo}/{collection}/{rkey}.
type URI struct {
	Repo       string
	Collection string
	Rkey       string
}

// ParseURI splits a record AT-URI into its parts. Query strings and fragments are not
// supported.
func ParseURI(raw string) (URI, error) {
	if !strings.HasPrefix(raw, uriScheme) {
		return URI{}, errors.Wrapf(ErrInvalidURI, "%q has no at:// scheme", raw)
	}
	parts := strings.Split(strings.TrimPrefix(raw, uriScheme), "/")
	if len(parts) != 3 {
		return URI{}, errors.Wrapf(ErrInvalidURI, "%q must be at://repo/collection/rkey", raw)
	}
	for _, part := range parts {
		if part == "" {
			return URI{}, errors.Wrapf(ErrInvalidURI, "%q has an empty segment", raw)
		}
	}
	return URI{Repo: parts[0], Collection: parts[1], Rkey: parts[2]}, nil
}

func (u URI) String() string {
	return uriScheme + u.Repo + "/" + u.Collection + "/" + u.Rkey
}
