package models

import "time"

// Kind tags a content item as a post or a comment. Posts and comments share
// the same shape and differ only in how they hang off other items.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// ContentRef addresses a content item by id and kind. Edge operations and the
// deletion cascade pass refs around instead of live records, so a step never
// dereferences something that moved underneath it.
type ContentRef struct {
	ID   int64 `json:"id"`
	Kind Kind  `json:"kind"`
}

// Admin levels. Level 2 and above may delete any account.
const (
	AdminNone           = 0
	AdminDeletePosts    = 1
	AdminDeleteAccounts = 2
)

// Account is a user record. The follow/follower and like relations live in
// edge tables keyed by both endpoints, not on the record itself; an account
// always holds the self-follow edge (id, id) from creation onward.
type Account struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Token       string    `json:"-"`
	AdminLevel  int       `json:"admin_level"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Theme       string    `json:"theme"`
	Color       string    `json:"color"`
	ColorTwo    string    `json:"color_two"`
	Gradient    bool      `json:"gradient"`
	Private     bool      `json:"private"`
	Created     time.Time `json:"created"`
}

// Content is a post or comment. Quote points at the item this one quotes,
// Parent at the item a comment hangs under; both nil when absent.
type Content struct {
	ID        int64       `json:"id"`
	Kind      Kind        `json:"kind"`
	CreatorID int64       `json:"creator_id"`
	Body      string      `json:"body"`
	Quote     *ContentRef `json:"quote,omitempty"`
	Parent    *ContentRef `json:"parent,omitempty"`
	Created   time.Time   `json:"created"`
}

// Ref returns the item's own reference.
func (c Content) Ref() ContentRef {
	return ContentRef{ID: c.ID, Kind: c.Kind}
}

// Notification event types.
const (
	NotifComment      = "comment" // someone commented on your post
	NotifQuotePost    = "quote_p" // your post was quoted
	NotifQuoteComment = "quote_c" // your comment was quoted
	NotifPingPost     = "ping_p"  // mentioned from a post
	NotifPingComment  = "ping_c"  // mentioned from a comment
)

// Notification is one entry in an account's inbox. EventID points at the
// content item that caused it.
type Notification struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	EventType string    `json:"event_type"`
	EventID   int64     `json:"event_id"`
	Read      bool      `json:"read"`
	Created   time.Time `json:"created"`
}

// EventType names a content-side side effect carried over Kafka.
type EventType string

const (
	EventPostCreated    EventType = "post_created"
	EventCommentCreated EventType = "comment_created"
	EventQuoteCreated   EventType = "quote_created"
)

// Event is the broker envelope for one side effect. Target is the parent
// (comment events) or the quoted item (quote events). Mentions lists accounts
// pinged from the body; the worker fans pings out.
type Event struct {
	ID       string      `json:"id"`
	Type     EventType   `json:"type"`
	ActorID  int64       `json:"actor_id"`
	Content  ContentRef  `json:"content"`
	Target   *ContentRef `json:"target,omitempty"`
	Mentions []int64     `json:"mentions,omitempty"`
	Created  time.Time   `json:"created"`
}
