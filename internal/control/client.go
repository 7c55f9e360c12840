package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the grpc.health.v1 service name that reports backend
// reachability.
const HealthService = "servicepro.remote"

// Client wraps a gRPC connection to the daemon.
type Client struct {
	conn   *grpc.ClientConn
	Health healthpb.HealthClient
}

// Dial connects to the daemon's Unix domain socket. The connection is made
// lazily on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, Health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Status", &StatusRequest{})
}

func (c *Client) Drain(ctx context.Context) (*DrainResponse, error) {
	return invoke[DrainResponse](ctx, c, "Drain", &DrainRequest{})
}

func (c *Client) ListPending(ctx context.Context, req *ListPendingRequest) (*ListPendingResponse, error) {
	return invoke[ListPendingResponse](ctx, c, "ListPending", req)
}

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	return invoke[SubmitResponse](ctx, c, "Submit", req)
}

func (c *Client) ListJobs(ctx context.Context, req *ListJobsRequest) (*ListJobsResponse, error) {
	return invoke[ListJobsResponse](ctx, c, "ListJobs", req)
}

func (c *Client) ClearCache(ctx context.Context) error {
	_, err := invoke[ClearCacheResponse](ctx, c, "ClearCache", &ClearCacheRequest{})
	return err
}

// BackendHealth asks the daemon whether it can reach the backend.
func (c *Client) BackendHealth(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService}, grpc.CallContentSubtype("proto"))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// EventStream is the client side of WatchSync.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends the
// stream.
func (s *EventStream) Recv() (*Event, error) {
	e := new(Event)
	if err := s.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

// WatchSync streams bus events until ctx is cancelled.
func (c *Client) WatchSync(ctx context.Context, req *WatchRequest) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchSync"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
