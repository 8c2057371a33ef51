package generator

import (
	"time"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
)

// PostType distinguishes original posts from shares and replies.
type PostType string

const (
	PostTypeOriginal PostType = "original"
	PostTypeShare    PostType = "share"
	PostTypeReply    PostType = "reply"
)

// GeoLocation places a post in a city. Roughly a third of posts carry none.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

func (l GeoLocation) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return &surgeerrors.ErrInvalidArgument{Name: "latitude", Value: l.Latitude, Message: "must be between -90 and 90"}
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return &surgeerrors.ErrInvalidArgument{Name: "longitude", Value: l.Longitude, Message: "must be between -180 and 180"}
	}
	return nil
}

// Post is one synthetic social media post. The json field names are the wire
// contract consumers of the stream rely on.
type Post struct {
	Id              string       `json:"id"`
	Timestamp       time.Time    `json:"timestamp"`
	UserId          string       `json:"user_id"`
	Username        string       `json:"username"`
	Content         string       `json:"content"`
	Hashtags        []string     `json:"hashtags"`
	Mentions        []string     `json:"mentions"`
	Location        *GeoLocation `json:"location,omitempty"`
	EngagementScore float64      `json:"engagement_score"`
	PostType        PostType     `json:"post_type"`
}

func (p Post) Validate() error {
	if p.UserId == "" {
		return &surgeerrors.ErrInvalidArgument{Name: "user_id", Value: p.UserId, Message: "must not be empty"}
	}
	if p.EngagementScore < 0 {
		return &surgeerrors.ErrInvalidArgument{Name: "engagement_score", Value: p.EngagementScore, Message: "must not be negative"}
	}
	switch p.PostType {
	case PostTypeOriginal, PostTypeShare, PostTypeReply:
	default:
		return &surgeerrors.ErrInvalidArgument{Name: "post_type", Value: string(p.PostType), Message: "unknown post type"}
	}
	if p.Location != nil {
		return p.Location.Validate()
	}
	return nil
}
