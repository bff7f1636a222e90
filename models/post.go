package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Mood - emoji/label/intensity triple attached to posts and diary entries
type Mood struct {
	Emoji string `gorm:"size:16" json:"emoji"`
	Label string `gorm:"size:60" json:"label"`
	Value int    `json:"value"`
}

// Post - model of a user post
type Post struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"size:36;index" json:"user_id"`
	Author      string     `gorm:"size:120" json:"author"`
	IsAnonymous bool       `json:"is_anonymous"`
	Avatar      string     `gorm:"size:512" json:"avatar,omitempty"`
	Content     string     `gorm:"type:text" json:"content"`
	Mood        Mood       `gorm:"embedded;embeddedPrefix:mood_" json:"mood"`
	Image       string     `gorm:"size:512" json:"image,omitempty"`
	Tags        []string   `gorm:"serializer:json" json:"tags"`
	Likes       int64      `gorm:"not null;default:0" json:"likes"`
	Comments    int64      `gorm:"not null;default:0" json:"comments"`
	Shares      int64      `gorm:"not null;default:0" json:"shares"`
	Visibility  Visibility `gorm:"size:16;index;default:public" json:"visibility"`
	CommunityID string     `gorm:"size:36;index" json:"community_id,omitempty"`
	IsEdited    bool       `json:"is_edited"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PostLike - the like set of a post
type PostLike struct {
	PostID    string    `gorm:"primaryKey;size:36" json:"post_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostLike) TableName() string {
	return "post_likes"
}

// Comment on a post
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;index" json:"post_id"`
	UserID    string    `gorm:"size:36;index" json:"user_id"`
	Author    string    `gorm:"size:120" json:"author"`
	Avatar    string    `gorm:"size:512" json:"avatar,omitempty"`
	Content   string    `gorm:"type:text" json:"content"`
	Likes      int64     `gorm:"default:0" json:"likes"`
	IsEdited   bool      `json:"is_edited"`
	IsHidden   bool      `json:"is_hidden"`
	IsReported bool      `json:"is_reported"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Comment) TableName() string {
	return "comments"
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CommentLike - one row per user who liked a comment
type CommentLike struct {
	CommentID string    `gorm:"primaryKey;size:36" json:"comment_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	PostID    string    `gorm:"size:36;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (CommentLike) TableName() string {
	return "comment_likes"
}

// CommentReport - a user's report of a comment, kept for moderation
type CommentReport struct {
	CommentID string    `gorm:"primaryKey;size:36" json:"comment_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	PostID    string    `gorm:"size:36;index" json:"post_id"`
	Reason    string    `gorm:"size:500" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (CommentReport) TableName() string {
	return "comment_reports"
}

// FeedPost - cached feed entry with author info
type FeedPost struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Author      string    `json:"author"`
	IsAnonymous bool      `json:"is_anonymous"`
	Avatar      string    `json:"avatar,omitempty"`
	Content     string    `json:"content"`
	Mood        Mood      `json:"mood"`
	Tags        []string  `json:"tags"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	CreatedAt   time.Time `json:"created_at"`
}

// FeedResponse - API answer for feeds and post listings
type FeedResponse struct {
	Posts   []FeedPost `json:"posts"`
	HasMore bool       `json:"has_more"`
	LastID  string     `json:"last_id,omitempty"`
}

// ToFeedPost hides the author of anonymous posts.
func (p *Post) ToFeedPost() FeedPost {
	fp := FeedPost{
		ID:          p.ID,
		UserID:      p.UserID,
		Author:      p.Author,
		IsAnonymous: p.IsAnonymous,
		Avatar:      p.Avatar,
		Content:     p.Content,
		Mood:        p.Mood,
		Tags:        p.Tags,
		Likes:       p.Likes,
		Comments:    p.Comments,
		CreatedAt:   p.CreatedAt,
	}
	if p.IsAnonymous {
		fp.UserID = ""
		fp.Author = "Anonymous"
		fp.Avatar = ""
	}
	return fp
}
