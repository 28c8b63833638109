package api

import "time"

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile         string `json:"profile"`
	State           string `json:"state"`
	UptimeMs        int64  `json:"uptime_ms"`
	Contacts        int    `json:"contacts"`
	Groups          int    `json:"groups"`
	ContactMessages int    `json:"contact_messages"`
	GroupMessages   int    `json:"group_messages"`
	ControlMessages int    `json:"control_messages"`
	MediaItems      int    `json:"media_items"`
	QueuedMessages  int    `json:"queued_messages"`
}

type GetIdentityRequest struct{}

type GetIdentityResponse struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

type ListContactsRequest struct {
	WithSelf bool `json:"with_self,omitempty"`
}

type Contact struct {
	ID            string `json:"id"`
	PublicKey     string `json:"public_key"`
	Nickname      string `json:"nickname,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Verification  string `json:"verification"`
	AccountStatus string `json:"account_status"`
	FeatureLevel  string `json:"feature_level"`
}

type ListContactsResponse struct {
	Contacts []*Contact `json:"contacts"`
}

type ListGroupsRequest struct{}

type Group struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	State   string   `json:"state"`
	Members []string `json:"members"`
}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

// ReadConversationRequest pages through a conversation. Without an anchor
// the page starts at the oldest message, or at the newest when Backward is set.
// With an anchor the page starts right after it (before it when Backward).
type ReadConversationRequest struct {
	Conversation string  `json:"conversation"`
	Anchor       *uint64 `json:"anchor,omitempty"`
	Backward     bool    `json:"backward,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

type Message struct {
	ID        uint64    `json:"id"`
	UUID      string    `json:"uuid"`
	Sender    string    `json:"sender"`
	Outgoing  bool      `json:"outgoing"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

type ReadConversationResponse struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

type EnableTimersRequest struct{}

type EnableTimersResponse struct {
	State string `json:"state"`
}
