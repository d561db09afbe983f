package model

import (
	"time"
)

/*

PostLike and PostRepost are the relational form of the Post membership sets,
one row per (post, user). The composite primary key makes a user appear in a
set at most once.

PostID: post id
UserID: member user id
CreatedAt: time when the user joined the set

*/

type PostLike struct {
	PostID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
}

type PostRepost struct {
	PostID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
}
