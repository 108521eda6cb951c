package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/http/api"
	"github.com/okian/connect-extensions/internal/adapters/repository"
	service "github.com/okian/connect-extensions/internal/app"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/dag"
	"github.com/okian/connect-extensions/internal/domain/poll"
	"github.com/okian/connect-extensions/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var taskErrorOutput = []string{"Bundle received", "Rendering index.qmd", "ERROR: quarto exited with status 1"}

// fakePlatform answers the platform API calls the service makes.
type fakePlatform struct {
	mu         sync.Mutex
	jobPolls   atomic.Int32
	stopAfter  int32
	destroyed  []string
	created    map[string]string
	taskFailed bool
	gate       chan struct{}
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /__api__/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Key revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":3,"error":"Invalid API key"}`)
			return
		}
		write(w, connect.User{GUID: "u1", Username: "ada"})
	})
	mux.HandleFunc("GET /__api__/v1/content", func(w http.ResponseWriter, _ *http.Request) {
		write(w, []connect.Content{
			{GUID: "c1", Name: "app-one", Title: "App One"},
			{GUID: "c2", Name: "app-two"},
			{GUID: "gone", Name: "deleted"},
		})
	})
	mux.HandleFunc("GET /__api__/v1/content/{guid}/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("guid") {
		case "c1":
			write(w, []connect.Job{{Key: "k1", Status: connect.JobRunning}, {Key: "k2", Status: 1}})
		case "c2":
			write(w, []connect.Job{{Key: "k3", Status: connect.JobRunning}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("DELETE /__api__/v1/content/{guid}/jobs/{key}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		f.destroyed = append(f.destroyed, r.PathValue("guid")+"/"+r.PathValue("key"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /__api__/v1/content/{guid}/jobs/{key}", func(w http.ResponseWriter, r *http.Request) {
		n := f.jobPolls.Add(1)
		status := connect.JobRunning
		if f.stopAfter > 0 && n >= f.stopAfter {
			status = 1
		}
		write(w, connect.Job{Key: r.PathValue("key"), Status: status})
	})
	mux.HandleFunc("POST /__api__/v1/content", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		f.created = in
		f.mu.Unlock()
		write(w, connect.Content{GUID: "new", Name: in["name"], ContentURL: "https://connect.example.com/content/new/"})
	})
	mux.HandleFunc("POST /__api__/v1/content/{guid}/bundles", func(w http.ResponseWriter, _ *http.Request) {
		write(w, connect.Bundle{ID: "b1"})
	})
	mux.HandleFunc("POST /__api__/v1/content/{guid}/deploy", func(w http.ResponseWriter, _ *http.Request) {
		write(w, map[string]string{"task_id": "t1"})
	})
	mux.HandleFunc("GET /__api__/v1/tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		if f.taskFailed {
			write(w, connect.Task{ID: "t1", Finished: true, Code: 1, Error: "render failed", Output: taskErrorOutput})
			return
		}
		write(w, connect.Task{ID: "t1", Finished: true, Output: []string{"done"}})
	})
	return mux
}

func newService(t *testing.T, fp *fakePlatform, opts ...service.Option) *service.Service {
	t.Helper()
	srv := httptest.NewServer(fp.handler())
	t.Cleanup(srv.Close)
	platform, err := connect.New(srv.URL, "service-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	store, err := repository.Open(repository.MemoryPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	base := []service.Option{
		service.WithPlatform(platform),
		service.WithStore(store),
		service.WithKillPolling(3, time.Millisecond),
		service.WithDeployPolling(3, time.Millisecond),
		service.WithKillWorkers(4, 1),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc
}

func flowInput(title string) dag.Input {
	return dag.Input{
		Title: title,
		Nodes: []dag.InputNode{
			{ID: "a", Type: dag.InputContent, ContentGUID: "c1", Label: "Extract"},
			{ID: "b", Type: dag.InputContent, ContentGUID: "c2", Label: "Load"},
		},
		Edges: []dag.InputEdge{{Source: "a", Target: "b"}},
	}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service without a platform", t, func() {
		store, err := repository.Open(repository.MemoryPath)
		So(err, ShouldBeNil)
		svc := service.New(service.WithStore(store), service.WithKillWorkers(2, 1))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop(context.Background())

		Convey("Starting twice is a no-op", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
		})

		Convey("Stats describe the running components", func() {
			st := svc.GetStats(context.Background())
			So(st.Platform, ShouldBeFalse)
			So(st.ChatEnabled, ShouldBeFalse)
			So(st.KillWorkers, ShouldEqual, 1)
		})

		Convey("Platform operations report the missing platform", func() {
			_, err := svc.Contents(context.Background(), "")
			So(errors.Is(err, service.ErrNoPlatform), ShouldBeTrue)
			_, err = svc.HealthReport(context.Background())
			So(errors.Is(err, service.ErrNoPlatform), ShouldBeTrue)
		})

		Convey("MCP tools are still listed", func() {
			So(svc.MCPTools(), ShouldNotBeEmpty)
			So(svc.MCPHandler(), ShouldNotBeNil)
		})
	})
}

func TestContentName(t *testing.T) {
	Convey("Content names are kebab case with an id suffix", t, func() {
		So(service.ContentName("Sales Report: Q1!", "0123456789abcdef"), ShouldEqual, "sales-report-q1-01234567")
		So(service.ContentName("   ", "abc"), ShouldEqual, "dag-execution-abc")
		So(service.ContentName("Ünïcode Flow", ""), ShouldEqual, "n-code-flow")

		long := service.ContentName(strings.Repeat("word ", 40), "0123456789")
		So(len(long), ShouldBeLessThanOrEqualTo, 64)
		So(long, ShouldEndWith, "-01234567")
	})
}

func TestKillJob(t *testing.T) {
	Convey("Given a running job", t, func() {
		fp := &fakePlatform{}

		Convey("KillJob waits until the job stops", func() {
			fp.stopAfter = 2
			svc := newService(t, fp)
			So(svc.KillJob(context.Background(), "", "c1", "k1"), ShouldBeNil)
			So(fp.destroyed, ShouldResemble, []string{"c1/k1"})
			So(fp.jobPolls.Load(), ShouldEqual, 2)
		})

		Convey("A job that never stops times out", func() {
			svc := newService(t, fp)
			err := svc.KillJob(context.Background(), "", "c1", "k1")
			So(errors.Is(err, service.ErrKillTimeout), ShouldBeTrue)
			So(errors.Is(err, poll.ErrExhausted), ShouldBeTrue)
			So(fp.jobPolls.Load(), ShouldEqual, 3)
		})
	})
}

func TestReaper(t *testing.T) {
	Convey("Given content with mixed jobs", t, func() {
		fp := &fakePlatform{stopAfter: 1}
		svc := newService(t, fp)
		ctx := context.Background()

		Convey("Only running jobs are listed and missing content is skipped", func() {
			jobs, err := svc.RunningJobs(ctx, "")
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 2)
			keys := map[string]string{}
			for _, j := range jobs {
				keys[j.Key] = j.ContentName
			}
			So(keys, ShouldResemble, map[string]string{"k1": "App One", "k3": "app-two"})
		})

		Convey("An empty kill list is rejected", func() {
			_, err := svc.EnqueueKills(ctx, "", nil)
			So(errors.Is(err, service.ErrNoKillTargets), ShouldBeTrue)
		})

		Convey("A target without a key is rejected with the rest", func() {
			rec, err := svc.EnqueueKills(ctx, "", []service.KillTarget{{GUID: "c1", Key: "k1"}, {GUID: "c1"}})
			So(errors.Is(err, service.ErrNoKillTargets), ShouldBeTrue)
			So(rec.Accepted, ShouldEqual, 1)
			So(rec.Rejected, ShouldEqual, 1)
		})

		Convey("A job already pending a kill is not queued twice", func() {
			gate := make(chan struct{})
			fp.mu.Lock()
			fp.gate = gate
			fp.mu.Unlock()
			rec, err := svc.EnqueueKills(ctx, "", []service.KillTarget{{GUID: "c2", Key: "k3"}, {GUID: "c2", Key: "k3"}})
			close(gate)
			So(err, ShouldBeNil)
			So(rec.Accepted, ShouldEqual, 1)
			So(rec.Duplicates, ShouldEqual, 1)
		})

		Convey("Queued kills are carried out by the workers", func() {
			rec, err := svc.EnqueueKills(ctx, "", []service.KillTarget{{GUID: "c2", Key: "k3"}})
			So(err, ShouldBeNil)
			So(rec.Accepted, ShouldEqual, 1)

			deadline := time.Now().Add(2 * time.Second)
			var destroyed []string
			for time.Now().Before(deadline) {
				fp.mu.Lock()
				destroyed = append([]string(nil), fp.destroyed...)
				fp.mu.Unlock()
				if len(destroyed) > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(destroyed, ShouldContain, "c2/k3")
		})
	})
}

func TestCloneDAG(t *testing.T) {
	Convey("Given a stored artifact whose graph no longer orders", t, func() {
		ctx := context.Background()
		store, err := repository.Open(repository.MemoryPath)
		So(err, ShouldBeNil)
		svc := newService(t, &fakePlatform{}, service.WithStore(store))

		stale, err := store.Save(ctx, repository.Artifact{
			UserGUID: "u1",
			Title:    "Loop",
			Nodes:    []dag.Node{{ID: "a"}, {ID: "b"}},
			Edges:    []dag.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
			Document: "# old",
		})
		So(err, ShouldBeNil)

		Convey("Cloning fails and leaves no copy behind", func() {
			_, err := svc.CloneDAG(ctx, "u1", stale.ID)
			So(errors.Is(err, dag.ErrCycle), ShouldBeTrue)

			list, err := svc.ListDAGs(ctx, "u1")
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
			So(list[0].ID, ShouldEqual, stale.ID)
		})
	})
}

func TestDAGs(t *testing.T) {
	Convey("Given a service with an artifact store", t, func() {
		fp := &fakePlatform{}
		svc := newService(t, fp)
		ctx := context.Background()

		Convey("Validation reports batches without saving", func() {
			check := svc.ValidateDAG(ctx, flowInput("Flow"))
			So(check.IsValid, ShouldBeTrue)
			So(check.Batches, ShouldResemble, [][]string{{"a"}, {"b"}})
			So(check.Mermaid, ShouldNotBeEmpty)

			list, err := svc.ListDAGs(ctx, "u1")
			So(err, ShouldBeNil)
			So(list, ShouldBeEmpty)
		})

		Convey("Cycles fail validation", func() {
			in := flowInput("Loop")
			in.Edges = append(in.Edges, dag.InputEdge{Source: "b", Target: "a"})
			check := svc.ValidateDAG(ctx, in)
			So(check.IsValid, ShouldBeFalse)

			_, err := svc.SaveDAG(ctx, "u1", "", in)
			var verr *service.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(errors.Is(err, dag.ErrInvalid), ShouldBeTrue)
		})

		Convey("Saved artifacts belong to their user", func() {
			a, err := svc.SaveDAG(ctx, "u1", "", flowInput("Flow"))
			So(err, ShouldBeNil)
			So(a.ID, ShouldNotBeEmpty)
			So(a.Document, ShouldContainSubstring, "Flow")

			_, err = svc.GetDAG(ctx, "u2", a.ID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			Convey("Clones get a copy title and their own document", func() {
				cp, err := svc.CloneDAG(ctx, "u1", a.ID)
				So(err, ShouldBeNil)
				So(cp.ID, ShouldNotEqual, a.ID)
				So(cp.Title, ShouldEqual, "Flow - copy 1")
				So(cp.Document, ShouldContainSubstring, cp.Title)
			})

			Convey("Downloads hold the deployment files and metadata", func() {
				dl, err := svc.DownloadDAG(ctx, "u1", a.ID)
				So(err, ShouldBeNil)
				So(dl.Filename, ShouldEqual, "dag_execution_"+a.ID+".zip")

				zr, err := zip.NewReader(bytes.NewReader(dl.Data), int64(len(dl.Data)))
				So(err, ShouldBeNil)
				names := []string{}
				for _, f := range zr.File {
					names = append(names, f.Name)
				}
				So(names, ShouldContain, dag.DocumentFile)
				So(names, ShouldContain, dag.RequirementsFile)
				So(names, ShouldContain, "metadata.json")
			})

			Convey("Publishing creates, uploads and deploys", func() {
				pub, err := svc.PublishDAG(ctx, service.Caller{APIKey: "user-key"}, a.ID)
				So(err, ShouldBeNil)
				So(pub.ContentGUID, ShouldEqual, "new")
				So(pub.BundleID, ShouldEqual, "b1")
				So(pub.TaskID, ShouldEqual, "t1")
				So(pub.ContentURL, ShouldEqual, "https://connect.example.com/content/new/")
				So(fp.created["title"], ShouldEqual, "Flow")
				So(fp.created["name"], ShouldEqual, service.ContentName("Flow", a.ID))
			})

			Convey("A failed deploy task surfaces its output", func() {
				fp.taskFailed = true
				_, err := svc.PublishDAG(ctx, service.Caller{APIKey: "user-key"}, a.ID)
				var derr *service.DeployError
				So(errors.As(err, &derr), ShouldBeTrue)
				So(derr.Code, ShouldEqual, 1)
				So(derr.Output, ShouldResemble, taskErrorOutput)
			})

			Convey("The publish route returns every output line of a failed task", func() {
				fp.taskFailed = true
				mux := http.NewServeMux()
				api.NewServer(svc).Register(ctx, mux)
				w := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/api/dags/"+a.ID+"/publish", http.NoBody)
				req.Header.Set("Authorization", "Key user-key")
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusBadGateway)
				var body struct {
					TaskID string   `json:"task_id"`
					Output []string `json:"output"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.TaskID, ShouldEqual, "t1")
				So(body.Output, ShouldResemble, taskErrorOutput)
			})

			Convey("Deleting removes the artifact", func() {
				So(svc.DeleteDAG(ctx, "u1", a.ID), ShouldBeNil)
				_, err := svc.GetDAG(ctx, "u1", a.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("The caller's key identifies the DAG user", func() {
			guid, err := svc.DAGUser(ctx, service.Caller{APIKey: "user-key"})
			So(err, ShouldBeNil)
			So(guid, ShouldEqual, "u1")

			_, err = svc.DAGUser(ctx, service.Caller{APIKey: "revoked"})
			So(connect.IsUnauthorized(err), ShouldBeTrue)
		})
	})
}

// echoStreamer replies with the prompt's last line split in two deltas.
type echoStreamer struct{}

func (echoStreamer) Stream(_ context.Context, _ chat.Request, onDelta func(string) error) error {
	if err := onDelta("echo: "); err != nil {
		return err
	}
	return onDelta("hi")
}

func TestChat(t *testing.T) {
	Convey("Given a service with a chat streamer", t, func() {
		svc := newService(t, &fakePlatform{}, service.WithStreamer(echoStreamer{}), service.WithChat("test-model", 256))
		ctx := context.Background()
		So(svc.ChatEnabled(), ShouldBeTrue)
		So(svc.ChatModel(), ShouldEqual, "test-model")

		var deltas []string
		reply, err := svc.Chat(ctx, "s1", "hi", func(d string) error {
			deltas = append(deltas, d)
			return nil
		})
		So(err, ShouldBeNil)
		So(reply, ShouldEqual, "echo: hi")
		So(deltas, ShouldResemble, []string{"echo: ", "hi"})
		So(svc.ChatHistory("s1"), ShouldHaveLength, 2)

		svc.ResetChat("s1")
		So(svc.ChatHistory("s1"), ShouldBeEmpty)
	})
}
