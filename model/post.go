package model

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

/*

Post is a single entry of the community feed.

Id: primary key, assigned by the store at creation, never changes
AuthorId, AuthorName, AuthorAvatarUrl: identity of the author captured at post
	time, not refreshed when the author later edits the profile
Body: user authored text, must be non-empty unless the post quotes a parent
CreatedAt: assigned once by the store clock, the default ordering key
EditedAt: time of the latest edit, nil if never edited
Pinned: pinned posts are listed before all unpinned posts

LikeCount, RepostCount: cardinality of LikedBy and RepostedBy, persisted only
	for O(1) reads, every store write recomputes them from the sets
ShareCount: monotonic counter, shares cannot be undone
CommentCount: number of replies, owned by the comment thread
LikedBy, RepostedBy: membership sets of user ids, the source of truth for the
	matching counters
ParentPostId: set when the post is a repost/quote of another post
Version: bumped by every structural mutation (edit, pin), used for optimistic
	concurrency on edit

*/
type Post struct {
	Id              string     `gorm:"primaryKey" bson:"_id" json:"id"`
	AuthorId        string     `gorm:"index;not null" bson:"authorId" json:"authorId"`
	AuthorName      string     `bson:"authorName" json:"authorName"`
	AuthorAvatarUrl string     `bson:"authorAvatarUrl" json:"authorAvatarUrl"`
	Body            string     `gorm:"type:text" bson:"body" json:"body"`
	CreatedAt       time.Time  `gorm:"index;not null;autoCreateTime:false" bson:"createdAt" json:"createdAt"`
	EditedAt        *time.Time `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	Pinned          bool       `gorm:"index;not null;default:false" bson:"pinned" json:"pinned"`
	LikeCount       int        `gorm:"not null;default:0" bson:"likeCount" json:"likeCount"`
	RepostCount     int        `gorm:"not null;default:0" bson:"repostCount" json:"repostCount"`
	ShareCount      int        `gorm:"not null;default:0" bson:"shareCount" json:"shareCount"`
	CommentCount    int        `gorm:"not null;default:0" bson:"commentCount" json:"commentCount"`
	LikedBy         []string   `gorm:"-" bson:"likedBy" json:"likedBy"`
	RepostedBy      []string   `gorm:"-" bson:"repostedBy" json:"repostedBy"`
	ParentPostId    *string    `gorm:"index" bson:"parentPostId,omitempty" json:"parentPostId,omitempty"`
	Version         int64      `gorm:"not null;default:1" bson:"version" json:"version"`
}

const (
	// MaxBodyLength is counted in runes.
	MaxBodyLength = 5000
	MaxIdLength   = 128
)

// Engagement names a membership set on a post.
type Engagement string

const (
	EngagementLike   Engagement = "LIKE"
	EngagementRepost Engagement = "REPOST"
)

func (e Engagement) IsValid() bool {
	switch e {
	case EngagementLike, EngagementRepost:
		return true
	}
	return false
}

func (e Engagement) String() string {
	return string(e)
}

// Members returns the membership set backing the engagement.
func (p *Post) Members(e Engagement) []string {
	if e == EngagementRepost {
		return p.RepostedBy
	}
	return p.LikedBy
}

// Count returns the denormalized counter backing the engagement.
func (p *Post) Count(e Engagement) int {
	if e == EngagementRepost {
		return p.RepostCount
	}
	return p.LikeCount
}

// SetMembers replaces a membership set and recomputes its counter.
func (p *Post) SetMembers(e Engagement, members []string) {
	if members == nil {
		members = []string{}
	}
	if e == EngagementRepost {
		p.RepostedBy = members
		p.RepostCount = len(members)
		return
	}
	p.LikedBy = members
	p.LikeCount = len(members)
}

func (p *Post) HasLiked(userId string) bool {
	return containsString(p.LikedBy, userId)
}

func (p *Post) HasReposted(userId string) bool {
	return containsString(p.RepostedBy, userId)
}

// Clone returns a deep copy, stores never hand out their own pointers.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.LikedBy = append([]string{}, p.LikedBy...)
	c.RepostedBy = append([]string{}, p.RepostedBy...)
	if p.EditedAt != nil {
		t := *p.EditedAt
		c.EditedAt = &t
	}
	if p.ParentPostId != nil {
		id := *p.ParentPostId
		c.ParentPostId = &id
	}
	return &c
}

// ValidateDraft checks the caller supplied fields of a post that has not been
// stored yet.
func (p *Post) ValidateDraft() error {
	if err := ValidateId(p.AuthorId); err != nil {
		return errors.Wrap(err, "authorId")
	}
	if p.ParentPostId != nil {
		if err := ValidateId(*p.ParentPostId); err != nil {
			return errors.Wrap(err, "parentPostId")
		}
	}
	return ValidateBody(p.Body, p.ParentPostId != nil)
}

// Validate checks a stored document against the Post schema. Documents that
// fail are rejected at the store boundary instead of being coerced.
func (p *Post) Validate() error {
	if err := ValidateId(p.Id); err != nil {
		return errors.Wrap(err, "id")
	}
	if err := p.ValidateDraft(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		return errors.Wrapf(ErrInvalidArgument, "post %s has no createdAt", p.Id)
	}
	if p.LikeCount != len(p.LikedBy) || p.RepostCount != len(p.RepostedBy) {
		return errors.Wrapf(ErrInvalidArgument, "post %s counters drifted from membership sets", p.Id)
	}
	if p.ShareCount < 0 || p.CommentCount < 0 {
		return errors.Wrapf(ErrInvalidArgument, "post %s has negative counters", p.Id)
	}
	if hasDuplicates(p.LikedBy) || hasDuplicates(p.RepostedBy) {
		return errors.Wrapf(ErrInvalidArgument, "post %s has duplicated members", p.Id)
	}
	return nil
}

// ValidateId accepts opaque ids that are safe to embed in store queries.
func ValidateId(id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidArgument, "empty id")
	}
	if len(id) > MaxIdLength {
		return errors.Wrapf(ErrInvalidArgument, "id longer than %d bytes", MaxIdLength)
	}
	if strings.HasPrefix(id, "$") {
		return errors.Wrapf(ErrInvalidArgument, "id %q starts with $", id)
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return errors.Wrapf(ErrInvalidArgument, "id %q contains whitespace or control characters", id)
		}
	}
	return nil
}

// ValidateBody requires text on root posts, quotes may be empty stubs.
func ValidateBody(body string, quote bool) error {
	if !quote && strings.TrimSpace(body) == "" {
		return errors.Wrap(ErrInvalidArgument, "empty post body")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return errors.Wrapf(ErrInvalidArgument, "post body longer than %d characters", MaxBodyLength)
	}
	return nil
}

// SamePost reports whether two posts carry identical state. Membership sets
// are compared as sets.
func SamePost(a, b *Post) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Id != b.Id ||
		a.AuthorId != b.AuthorId ||
		a.AuthorName != b.AuthorName ||
		a.AuthorAvatarUrl != b.AuthorAvatarUrl ||
		a.Body != b.Body ||
		!a.CreatedAt.Equal(b.CreatedAt) ||
		a.Pinned != b.Pinned ||
		a.LikeCount != b.LikeCount ||
		a.RepostCount != b.RepostCount ||
		a.ShareCount != b.ShareCount ||
		a.CommentCount != b.CommentCount ||
		a.Version != b.Version {
		return false
	}
	if (a.EditedAt == nil) != (b.EditedAt == nil) {
		return false
	}
	if a.EditedAt != nil && !a.EditedAt.Equal(*b.EditedAt) {
		return false
	}
	if (a.ParentPostId == nil) != (b.ParentPostId == nil) {
		return false
	}
	if a.ParentPostId != nil && *a.ParentPostId != *b.ParentPostId {
		return false
	}
	return sameSet(a.LikedBy, b.LikedBy) && sameSet(a.RepostedBy, b.RepostedBy)
}

func containsString(hay []string, needle string) bool {
	for _, s := range hay {
		if s == needle {
			return true
		}
	}
	return false
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string{}, a...)
	y := append([]string{}, b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
