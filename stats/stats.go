package stats

import (
	"context"

	"github.com/Luismorlan/campusfeed/broker"
	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
)

// Aggregate computes community totals over posts. It is pure, totals are
// recomputed from scratch for every snapshot.
func Aggregate(posts []*model.Post) *model.CommunityStats {
	stats := &model.CommunityStats{TotalPosts: len(posts)}
	for _, p := range posts {
		stats.TotalLikes += p.LikeCount
		stats.TotalReposts += p.RepostCount
		stats.TotalShares += p.ShareCount
	}
	return stats
}

// OnSnapshot aggregates the posts visible in a snapshot. A snapshot only
// carries the top of the feed, FullTotals covers every stored post.
func OnSnapshot(snapshot *model.Snapshot) *model.CommunityStats {
	if snapshot == nil {
		return &model.CommunityStats{}
	}
	return Aggregate(snapshot.Posts)
}

// FullTotals asks the store to aggregate every post.
func FullTotals(ctx context.Context, s store.Store) (*model.CommunityStats, error) {
	return s.Totals(ctx)
}

// Stream maps every snapshot of sub to its totals. The returned channel is
// closed when the subscription ends or ctx is done.
func Stream(ctx context.Context, sub *broker.Subscription) <-chan *model.CommunityStats {
	out := make(chan *model.CommunityStats, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-sub.Snapshots():
				if !ok {
					return
				}
				select {
				case out <- OnSnapshot(snapshot):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
