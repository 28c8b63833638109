package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to a daemon over its unix socket.
type Client struct {
	conn   *grpc.ClientConn
	Health healthpb.HealthClient
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, Health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	resp := new(GetStatusResponse)
	return resp, c.invoke(ctx, "GetStatus", &GetStatusRequest{}, resp)
}

func (c *Client) GetIdentity(ctx context.Context) (*GetIdentityResponse, error) {
	resp := new(GetIdentityResponse)
	return resp, c.invoke(ctx, "GetIdentity", &GetIdentityRequest{}, resp)
}

func (c *Client) ListContacts(ctx context.Context, req *ListContactsRequest) (*ListContactsResponse, error) {
	resp := new(ListContactsResponse)
	return resp, c.invoke(ctx, "ListContacts", req, resp)
}

func (c *Client) ListGroups(ctx context.Context) (*ListGroupsResponse, error) {
	resp := new(ListGroupsResponse)
	return resp, c.invoke(ctx, "ListGroups", &ListGroupsRequest{}, resp)
}

func (c *Client) ReadConversation(ctx context.Context, req *ReadConversationRequest) (*ReadConversationResponse, error) {
	resp := new(ReadConversationResponse)
	return resp, c.invoke(ctx, "ReadConversation", req, resp)
}

func (c *Client) EnableTimers(ctx context.Context) (*EnableTimersResponse, error) {
	resp := new(EnableTimersResponse)
	return resp, c.invoke(ctx, "EnableTimers", &EnableTimersRequest{}, resp)
}
