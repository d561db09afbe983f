package ledger

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ledger applies engagement actions to posts. Each action is a single atomic
// store write, the ledger holds no state and never retries.
type Ledger struct {
	store store.Store
}

type LikeResult struct {
	Liked    bool `json:"liked"`
	NewCount int  `json:"newCount"`
}

type RepostResult struct {
	Reposted bool `json:"reposted"`
	NewCount int  `json:"newCount"`
}

type ShareResult struct {
	NewCount int `json:"newCount"`
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// authenticated rejects anonymous callers. A caller with an empty or malformed
// id is a bad argument, not a missing identity.
func authenticated(caller *model.Identity) error {
	if caller == nil {
		return errors.Wrap(model.ErrUnauthorized, "engagement requires a signed in user")
	}
	return errors.Wrap(model.ValidateId(caller.UserId), "caller id")
}

func (l *Ledger) toggle(ctx context.Context, caller *model.Identity, postId string, e model.Engagement) (*store.MembershipResult, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	if err := model.ValidateId(postId); err != nil {
		return nil, errors.Wrap(err, "postId")
	}
	res, err := l.store.ToggleMembership(ctx, postId, e, caller.UserId)
	if err != nil {
		return nil, err
	}
	Logger.Log.WithFields(logrus.Fields{
		"post_id":    postId,
		"user_id":    caller.UserId,
		"engagement": e.String(),
		"member":     res.Member,
		"count":      res.Count,
	}).Debug("toggled engagement")
	return res, nil
}

// ToggleLike likes the post for the caller, or removes the like if the caller
// already liked it.
func (l *Ledger) ToggleLike(ctx context.Context, caller *model.Identity, postId string) (*LikeResult, error) {
	res, err := l.toggle(ctx, caller, postId, model.EngagementLike)
	if err != nil {
		return nil, err
	}
	return &LikeResult{Liked: res.Member, NewCount: res.Count}, nil
}

func (l *Ledger) ToggleRepost(ctx context.Context, caller *model.Identity, postId string) (*RepostResult, error) {
	res, err := l.toggle(ctx, caller, postId, model.EngagementRepost)
	if err != nil {
		return nil, err
	}
	return &RepostResult{Reposted: res.Member, NewCount: res.Count}, nil
}

// IncrementShare counts a share. Shares have no membership and cannot be
// undone.
func (l *Ledger) IncrementShare(ctx context.Context, caller *model.Identity, postId string) (*ShareResult, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	if err := model.ValidateId(postId); err != nil {
		return nil, errors.Wrap(err, "postId")
	}
	post, err := l.store.IncrementShares(ctx, postId)
	if err != nil {
		return nil, err
	}
	return &ShareResult{NewCount: post.ShareCount}, nil
}
