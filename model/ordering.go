package model

import (
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PostLess is the feed order: pinned first, then newest first, then id
// ascending so that identical timestamps still give a total order.
func PostLess(a, b *Post) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Id < b.Id
}

// SortPosts sorts posts in place in feed order.
func SortPosts(posts []*Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return PostLess(posts[i], posts[j])
	})
}

// FeedCursor is the position right after a post in feed order. Listing with a
// cursor returns only posts that sort strictly after it.
type FeedCursor struct {
	Pinned    bool
	CreatedAt time.Time
	Id        string
}

const cursorDelimiter = "|"

func CursorOf(p *Post) *FeedCursor {
	return &FeedCursor{
		Pinned:    p.Pinned,
		CreatedAt: p.CreatedAt,
		Id:        p.Id,
	}
}

// Precedes reports whether p sorts strictly after the cursor.
func (c *FeedCursor) Precedes(p *Post) bool {
	return PostLess(&Post{Pinned: c.Pinned, CreatedAt: c.CreatedAt, Id: c.Id}, p)
}

// Encode renders the cursor as an opaque url-safe token.
func (c *FeedCursor) Encode() string {
	pinned := "0"
	if c.Pinned {
		pinned = "1"
	}
	raw := strings.Join([]string{pinned, c.CreatedAt.UTC().Format(time.RFC3339Nano), c.Id}, cursorDelimiter)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeFeedCursor parses a token produced by Encode. An empty token means
// "from the top" and yields nil.
func DecodeFeedCursor(token string) (*FeedCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, "malformed cursor")
	}
	splits := strings.SplitN(string(raw), cursorDelimiter, 3)
	if len(splits) != 3 || (splits[0] != "0" && splits[0] != "1") {
		return nil, errors.Wrapf(ErrInvalidArgument, "malformed cursor: %s", raw)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, splits[1])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, "malformed cursor timestamp")
	}
	if err := ValidateId(splits[2]); err != nil {
		return nil, errors.Wrap(err, "malformed cursor id")
	}
	return &FeedCursor{
		Pinned:    splits[0] == "1",
		CreatedAt: createdAt,
		Id:        splits[2],
	}, nil
}
