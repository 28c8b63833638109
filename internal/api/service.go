// Package api serves the local admin surface of the daemon over gRPC.
package api

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/matheus3301/cipherlog/internal/message"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// StoreService exposes read access to the store plus lifecycle controls.
type StoreService struct {
	profile   string
	startedAt time.Time
	db        *store.DB
	machine   *status.Machine
	logger    *zap.Logger
}

// NewStoreService creates the service for an opened store.
func NewStoreService(profile string, db *store.DB, machine *status.Machine, logger *zap.Logger) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreService{
		profile:   profile,
		startedAt: time.Now(),
		db:        db,
		machine:   machine,
		logger:    logger,
	}
}

func (s *StoreService) GetStatus(ctx context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Profile:  s.profile,
		State:    string(s.machine.Current()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if s.db == nil {
		return resp, nil
	}
	counts := []struct {
		dst *int
		fn  func(context.Context) (int, error)
	}{
		{&resp.Contacts, s.db.ContactCount},
		{&resp.Groups, s.db.GroupCount},
		{&resp.ContactMessages, s.db.ContactMessageCount},
		{&resp.GroupMessages, s.db.GroupMessageCount},
		{&resp.ControlMessages, s.db.ControlMessageCount},
		{&resp.MediaItems, s.db.MediaItemCount},
	}
	for _, c := range counts {
		n, err := c.fn(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		*c.dst = n
	}
	queued, err := s.db.QueuedMessages(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp.QueuedMessages = len(queued)
	return resp, nil
}

func (s *StoreService) GetIdentity(_ context.Context, _ *GetIdentityRequest) (*GetIdentityResponse, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "store not open")
	}
	b := s.db.Backup()
	return &GetIdentityResponse{ID: b.ID.String(), PublicKey: b.Keys.Public.String()}, nil
}

func (s *StoreService) ListContacts(ctx context.Context, req *ListContactsRequest) (*ListContactsResponse, error) {
	ids, err := s.db.KnownContacts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if !req.WithSelf {
		self := s.db.SelfContact()
		ids = slices.DeleteFunc(ids, func(id protocol.ContactID) bool { return id == self })
	}
	resp := &ListContactsResponse{Contacts: make([]*Contact, 0, len(ids))}
	for _, id := range ids {
		c, err := s.db.Contact(ctx, id)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Contacts = append(resp.Contacts, &Contact{
			ID:            c.ID.String(),
			PublicKey:     c.PublicKey.String(),
			Nickname:      c.Nickname,
			FirstName:     c.FirstName,
			LastName:      c.LastName,
			Verification:  c.Verification.String(),
			AccountStatus: c.AccountStatus.String(),
			FeatureLevel:  c.FeatureLevel.String(),
		})
	}
	return resp, nil
}

func (s *StoreService) ListGroups(ctx context.Context, _ *ListGroupsRequest) (*ListGroupsResponse, error) {
	groups, err := s.db.KnownGroupsWithMembersAndTitles(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListGroupsResponse{Groups: make([]*Group, 0, len(groups))}
	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, m.String())
		}
		resp.Groups = append(resp.Groups, &Group{
			ID:      g.ID.String(),
			Title:   g.Title,
			State:   g.State().String(),
			Members: members,
		})
	}
	return resp, nil
}

func (s *StoreService) ReadConversation(ctx context.Context, req *ReadConversationRequest) (*ReadConversationResponse, error) {
	conv, err := message.ParseConversation(req.Conversation)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "conversation: %v", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	c, err := s.db.MessageCursor(ctx, conv)
	if err != nil {
		return nil, toStatus(err)
	}
	step := c.Next
	if req.Backward {
		step = c.Previous
	}

	var ok, found bool
	switch {
	case req.Anchor != nil:
		found, err = c.Seek(ctx, protocol.MessageID(*req.Anchor))
		if err != nil {
			return nil, toStatus(err)
		}
		if !found {
			return nil, grpcstatus.Errorf(codes.NotFound, "message %d not in %s", *req.Anchor, conv)
		}
		ok, err = step(ctx)
	case req.Backward:
		ok, err = c.SeekToLast(ctx)
	default:
		ok, err = c.SeekToFirst(ctx)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &ReadConversationResponse{Messages: []*Message{}}
	for ok && len(resp.Messages) < limit {
		m, err := c.Message(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Messages = append(resp.Messages, messageToAPI(m))
		if ok, err = step(ctx); err != nil {
			return nil, toStatus(err)
		}
	}
	resp.HasMore = ok
	return resp, nil
}

// EnableTimers switches the store to live operation so the queue supervisor
// starts sweeping. Calling it again is harmless.
func (s *StoreService) EnableTimers(_ context.Context, _ *EnableTimersRequest) (*EnableTimersResponse, error) {
	if !s.machine.IsLive() {
		if err := s.machine.Transition(status.Live); err != nil {
			return nil, grpcstatus.Errorf(codes.FailedPrecondition, "enable timers: %v", err)
		}
		s.logger.Info("timers enabled")
	}
	return &EnableTimersResponse{State: string(s.machine.Current())}, nil
}

func messageToAPI(m *message.Message) *Message {
	return &Message{
		ID:        uint64(m.ID),
		UUID:      m.UUID,
		Sender:    m.Sender.String(),
		Outgoing:  m.Outgoing,
		Status:    string(m.Status),
		Kind:      string(m.Content.Kind),
		Preview:   m.Content.Preview(),
		CreatedAt: m.CreatedAt,
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrUnknownConversation),
		errors.Is(err, store.ErrUnknownContact),
		errors.Is(err, store.ErrUnknownGroup),
		errors.Is(err, store.ErrUnknownMessage):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrInvalidContent):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrStorageUnavailable):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
