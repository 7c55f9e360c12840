package control

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/model"
	"github.com/deltadent/ServicePro-sub000/internal/queue"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/remote/remotetest"
	"github.com/deltadent/ServicePro-sub000/internal/repo"
	"github.com/deltadent/ServicePro-sub000/internal/status"
	"github.com/deltadent/ServicePro-sub000/internal/store/storetest"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

type harness struct {
	be      *remotetest.Backend
	monitor *status.Monitor
	engine  *intsync.Engine
	queue   *queue.Queue
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Use a short path to stay under the Unix socket length limit.
	tmpDir, err := os.MkdirTemp("/tmp", "sp-ctl-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	db := storetest.Open(t)
	be := remotetest.New()
	b := bus.New()
	q := queue.New(db, b, nil)
	repos := repo.NewSet(repo.Deps{DB: db, Backend: be, ReadBudget: time.Second})
	engine := intsync.NewEngine(intsync.Deps{DB: db, Queue: q, Repos: repos, Backend: be, Blobs: remotetest.NewBlobs(), Bus: b})
	monitor := status.NewMonitor(status.Deps{Pinger: be, Drainer: engine, DB: db, Bus: b}, status.Options{})

	svc := NewService(Deps{
		Profile: "test",
		DB:      db,
		Monitor: monitor,
		Engine:  engine,
		Queue:   q,
		Repos:   repos,
		Bus:     b,
	})
	grpcSrv := grpc.NewServer()
	Register(grpcSrv, svc)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcSrv.Serve(listener) }()
	t.Cleanup(grpcSrv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return &harness{be: be, monitor: monitor, engine: engine, queue: q, client: c}
}

func notePayload(t *testing.T, job, body string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(action.Note{Job: job, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestStatusOnFreshDaemon(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if resp.Profile != "test" || resp.Connectivity != string(status.Unknown) {
		t.Errorf("status = %+v", resp)
	}
	if resp.Syncing || resp.Pending != 0 || resp.LastSyncAt != nil || resp.LastResult != nil {
		t.Errorf("fresh daemon reports activity: %+v", resp)
	}
}

func TestSubmitQueuesWhileOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.monitor.Set(false)

	for _, job := range []string{"j1", "j2", "j1"} {
		resp, err := h.client.Submit(ctx, &SubmitRequest{Type: action.TypeNote, Payload: notePayload(t, job, "hi")})
		if err != nil {
			t.Fatalf("Submit error = %v", err)
		}
		if resp.Outcome.Queued == nil || resp.Outcome.Applied != nil {
			t.Fatalf("outcome = %+v, want queued", resp.Outcome)
		}
	}
	if w := h.be.Writes(); len(w) != 0 {
		t.Fatalf("offline submit wrote to backend: %v", w)
	}

	all, err := h.client.ListPending(ctx, &ListPendingRequest{})
	if err != nil || len(all.Items) != 3 || all.Count != 3 {
		t.Fatalf("ListPending = %+v, %v", all, err)
	}
	j1, err := h.client.ListPending(ctx, &ListPendingRequest{JobID: "j1"})
	if err != nil || len(j1.Items) != 2 || j1.Count != 2 {
		t.Fatalf("ListPending(j1) = %+v, %v", j1, err)
	}
	if j1.Items[0].ID != all.Items[0].ID || j1.Items[1].ID != all.Items[2].ID {
		t.Errorf("job filter broke queue order")
	}
	idle, err := h.client.ListPending(ctx, &ListPendingRequest{JobID: "j3"})
	if err != nil || len(idle.Items) != 0 || idle.Count != 0 {
		t.Fatalf("ListPending(j3) = %+v, %v", idle, err)
	}

	resp, err := h.client.Status(ctx)
	if err != nil || resp.Pending != 3 || resp.Connectivity != string(status.Offline) {
		t.Fatalf("Status = %+v, %v", resp, err)
	}
}

func TestSubmitAppliesWhileOnline(t *testing.T) {
	h := newHarness(t)
	h.monitor.Set(true)

	resp, err := h.client.Submit(context.Background(), &SubmitRequest{Type: action.TypeNote, Payload: notePayload(t, "j1", "hi")})
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if resp.Outcome.Applied == nil || resp.Outcome.Applied.ID == "" {
		t.Fatalf("outcome = %+v, want applied", resp.Outcome)
	}
	if rows := h.be.Rows(remote.ResourceJobNotes); len(rows) != 1 {
		t.Fatalf("notes = %v", rows)
	}

	resp, err = h.client.Submit(context.Background(), &SubmitRequest{Type: action.TypeNote, Payload: notePayload(t, "j1", "later"), QueueOnly: true})
	if err != nil || resp.Outcome.Queued == nil {
		t.Fatalf("queue-only submit = %+v, %v", resp, err)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Submit(ctx, &SubmitRequest{Type: "TELEPORT", Payload: json.RawMessage(`{}`)})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown type: code = %v (%v)", grpcstatus.Code(err), err)
	}
	_, err = h.client.Submit(ctx, &SubmitRequest{Type: action.TypeCheck, Payload: json.RawMessage(`{"job_id":"j1","event":"lunch"}`)})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid payload: code = %v (%v)", grpcstatus.Code(err), err)
	}
}

func TestDrainAndWatch(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.queue.Push(ctx, action.Note{Job: "j1", Body: "queued"}); err != nil {
		t.Fatal(err)
	}

	stream, err := h.client.WatchSync(ctx, &WatchRequest{})
	if err != nil {
		t.Fatalf("WatchSync error = %v", err)
	}
	waitSubscribed(t, h, stream)

	resp, err := h.client.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain error = %v", err)
	}
	if !resp.Result.Success || resp.Result.Processed != 1 {
		t.Fatalf("drain = %+v", resp.Result)
	}

	var kinds []string
	for len(kinds) < 2 {
		evt, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv error = %v", err)
		}
		if evt.Profile != "test" || evt.ID == "" {
			t.Errorf("event = %+v", evt)
		}
		if evt.Kind == bus.ConnectivityChanged {
			continue
		}
		if evt.Kind == bus.QueueEnqueued {
			t.Errorf("queue event outside the default namespaces: %+v", evt)
		}
		kinds = append(kinds, evt.Kind)
		if evt.Kind == bus.SyncCompleted {
			var res intsync.Result
			if err := json.Unmarshal(evt.Payload, &res); err != nil || res.Processed != 1 {
				t.Errorf("completed payload = %s (%v)", evt.Payload, err)
			}
		}
	}
	if kinds[0] != bus.NoteSynced || kinds[1] != bus.SyncCompleted {
		t.Errorf("kinds = %v", kinds)
	}

	st, err := h.client.Status(ctx)
	if err != nil || st.LastSyncAt == nil || st.LastResult == nil || st.Pending != 0 {
		t.Fatalf("Status after drain = %+v, %v", st, err)
	}
}

// waitSubscribed toggles connectivity until the watcher receives an event,
// so the stream is known to be live before the test acts.
func waitSubscribed(t *testing.T, h *harness, stream *EventStream) {
	t.Helper()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		online := false
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				online = !online
				h.monitor.Set(online)
			}
		}
	}()
	evt, err := stream.Recv()
	close(stop)
	<-done
	if err != nil {
		t.Fatalf("Recv error = %v", err)
	}
	if evt.Kind != bus.ConnectivityChanged {
		t.Fatalf("first event = %s, want %s", evt.Kind, bus.ConnectivityChanged)
	}
}

func TestListJobsFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tech := "t1"
	h.be.Seed(remote.ResourceJobs,
		model.Job{ID: "j1", Title: "A", TechnicianID: &tech, Status: model.JobScheduled},
		model.Job{ID: "j2", Title: "B", Status: model.JobScheduled},
	)

	resp, err := h.client.ListJobs(ctx, &ListJobsRequest{TechnicianID: "t1"})
	if err != nil {
		t.Fatalf("ListJobs error = %v", err)
	}
	if resp.FromCache || len(resp.Jobs) != 1 || resp.Jobs[0].ID != "j1" {
		t.Fatalf("online ListJobs = %+v", resp)
	}

	h.be.SetOffline(true)
	resp, err = h.client.ListJobs(ctx, &ListJobsRequest{TechnicianID: "t1"})
	if err != nil {
		t.Fatalf("ListJobs error = %v", err)
	}
	if !resp.FromCache || len(resp.Jobs) != 1 || resp.Count != 1 {
		t.Fatalf("offline ListJobs = %+v", resp)
	}
}

func TestClearCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.be.Seed(remote.ResourceJobs, model.Job{ID: "j1"})
	if _, err := h.client.ListJobs(ctx, &ListJobsRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.queue.Push(ctx, action.Note{Job: "j1", Body: "x"}); err != nil {
		t.Fatal(err)
	}

	if err := h.client.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache error = %v", err)
	}

	if n, _ := h.queue.Count(ctx); n != 0 {
		t.Errorf("queue = %d after clear", n)
	}
	h.be.SetOffline(true)
	resp, err := h.client.ListJobs(ctx, &ListJobsRequest{})
	if err != nil || len(resp.Jobs) != 0 || resp.Jobs == nil {
		t.Errorf("cache after clear = %+v, %v", resp, err)
	}
}

func TestClearCacheRefusedWhileDraining(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.queue.Push(ctx, action.Note{Job: "j1", Body: "x"}); err != nil {
		t.Fatal(err)
	}

	err := h.engine.Exclusive(ctx, func(context.Context) error {
		err := h.client.ClearCache(ctx)
		if grpcstatus.Code(err) != codes.Aborted {
			t.Errorf("ClearCache code = %v (%v), want Aborted", grpcstatus.Code(err), err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := h.queue.Count(ctx); n != 1 {
		t.Errorf("queue = %d, want the item kept", n)
	}
}
