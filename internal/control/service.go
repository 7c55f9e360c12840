// Package control exposes the daemon over gRPC: status, manual drains, queue
// inspection, action submission and a stream of sync events.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/queue"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/repo"
	"github.com/deltadent/ServicePro-sub000/internal/status"
	"github.com/deltadent/ServicePro-sub000/internal/store"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

// Deps are what the control service reads and drives.
type Deps struct {
	Profile string
	DB      *store.DB
	Monitor *status.Monitor
	Engine  *intsync.Engine
	Queue   *queue.Queue
	Repos   *repo.Set
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Service implements ControlServer.
type Service struct {
	d         Deps
	logger    *zap.Logger
	startedAt time.Time
}

var _ ControlServer = (*Service)(nil)

// NewService creates the control service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{d: d, logger: logger, startedAt: time.Now()}
}

func (s *Service) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:      s.d.Profile,
		Connectivity: string(s.d.Monitor.Current()),
		Syncing:      s.d.Engine.IsSyncing(),
		UptimeMs:     time.Since(s.startedAt).Milliseconds(),
		Dropped:      s.d.Bus.Dropped(),
	}
	if n, err := s.d.Queue.Count(ctx); err == nil {
		resp.Pending = n
	}
	if snap, err := s.d.Engine.Watermarks().Last(ctx); err == nil {
		resp.LastSyncAt = snap.LastSyncAt
		resp.LastResult = snap.LastResult
	} else {
		s.logger.Warn("failed to read sync watermarks", zap.Error(err))
	}
	var online string
	if m, err := s.d.DB.GetMeta(ctx, store.MetaLastOnlineAt, &online); err == nil && m != nil {
		resp.LastOnlineAt = online
	}
	return resp, nil
}

func (s *Service) Drain(ctx context.Context, _ *DrainRequest) (*DrainResponse, error) {
	res, err := s.d.Engine.Drain(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DrainResponse{Result: res}, nil
}

func (s *Service) ListPending(ctx context.Context, req *ListPendingRequest) (*ListPendingResponse, error) {
	if req.JobID != "" {
		items, err := s.d.Queue.ListForJob(ctx, req.JobID)
		if err != nil {
			return nil, toStatus(err)
		}
		return &ListPendingResponse{Items: items, Count: s.d.Queue.CountForJob(ctx, req.JobID)}, nil
	}
	items, err := s.d.Queue.ListPending(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListPendingResponse{Items: items, Count: len(items)}, nil
}

func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	t, err := action.ParseType(string(req.Type))
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	a, err := action.Decode(t, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	online := !req.QueueOnly && s.d.Monitor.Online()
	out, err := s.d.Engine.Submit(ctx, a, online)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponse{Outcome: out}, nil
}

func (s *Service) ListJobs(ctx context.Context, req *ListJobsRequest) (*ListJobsResponse, error) {
	res := s.d.Repos.Jobs.List(ctx, req.filter())
	jobs := res.Items
	if jobs == nil {
		jobs = []model.Job{}
	}
	return &ListJobsResponse{Jobs: jobs, Count: res.Count, FromCache: res.FromCache}, nil
}

// ClearCache wipes every cached entity, the queue and the sync watermarks,
// as on sign-out.
func (s *Service) ClearCache(ctx context.Context, _ *ClearCacheRequest) (*ClearCacheResponse, error) {
	err := s.d.Engine.Exclusive(ctx, func(ctx context.Context) error {
		errs := []error{s.d.Repos.ClearAll(ctx), s.d.Queue.Clear(ctx)}
		for _, key := range []string{store.MetaLastSyncAt, store.MetaLastSyncResult} {
			errs = append(errs, s.d.DB.DeleteMeta(ctx, key))
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("local cache cleared")
	return &ClearCacheResponse{}, nil
}

func (s *Service) WatchSync(req *WatchRequest, stream EventSender) error {
	namespaces := req.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{bus.NamespaceSync, bus.NamespaceConnectivity}
	}
	ch, unsub := s.d.Bus.SubscribeAny(namespaces, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(&Event{
				ID:         uuid.New().String(),
				Profile:    s.d.Profile,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Payload:    payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var ve *action.ValidationError
	var se *remote.StatusError
	switch {
	case errors.As(err, &ve):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &se):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case remote.IsNetwork(err):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, intsync.ErrSyncInProgress):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.FromContextError(err).Err()
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}
