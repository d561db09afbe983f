package model

// CommunityStats are platform wide engagement totals.
type CommunityStats struct {
	TotalPosts   int `json:"totalPosts"`
	TotalLikes   int `json:"totalLikes"`
	TotalReposts int `json:"totalReposts"`
	TotalShares  int `json:"totalShares"`
}
