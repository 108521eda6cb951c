package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/connect-extensions/internal/domain/dag"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	s, err := Open(MemoryPath,
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(user, title string) Artifact {
	return Artifact{
		UserGUID: user,
		Title:    title,
		Nodes:    []dag.Node{{ID: "a", Data: dag.NodeData{ContentGUID: "g"}}, {ID: "b"}},
		Edges:    []dag.Edge{{Source: "a", Target: "b"}},
		Batches:  [][]string{{"a"}, {"b"}},
		Document: "# doc",
	}
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := openTestStore(t)

		Convey("Save creates an artifact with generated id and counts", func() {
			a, err := s.Save(ctx, sample("u1", "  Nightly  "))
			So(err, ShouldBeNil)
			So(a.ID, ShouldEqual, "id-1")
			So(a.Name, ShouldEqual, "dag_execution_id-1")
			So(a.Title, ShouldEqual, "Nightly")
			So(a.ArtifactSize, ShouldResemble, ArtifactSize{Nodes: 2, Edges: 1, Batches: 2})

			got, err := s.Get(ctx, "u1", a.ID)
			So(err, ShouldBeNil)
			So(got.Nodes, ShouldResemble, a.Nodes)
			So(got.Batches, ShouldResemble, [][]string{{"a"}, {"b"}})
			So(got.Document, ShouldEqual, "# doc")
			So(got.Timestamp.Equal(a.Timestamp), ShouldBeTrue)
		})

		Convey("Titles are unique per user ignoring case", func() {
			_, err := s.Save(ctx, sample("u1", "Nightly"))
			So(err, ShouldBeNil)

			_, err = s.Save(ctx, sample("u1", "NIGHTLY "))
			So(errors.Is(err, ErrTitleExists), ShouldBeTrue)

			_, err = s.Save(ctx, sample("u2", "Nightly"))
			So(err, ShouldBeNil)

			id, err := s.FindByTitle(ctx, "u1", "nightly")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "id-1")
		})

		Convey("Required fields are enforced", func() {
			_, err := s.Save(ctx, sample("u1", " "))
			So(errors.Is(err, ErrTitleRequired), ShouldBeTrue)
			_, err = s.Save(ctx, sample("", "x"))
			So(errors.Is(err, ErrUserRequired), ShouldBeTrue)
		})

		Convey("Updates keep the id and need an existing artifact", func() {
			a, _ := s.Save(ctx, sample("u1", "Nightly"))
			a.Title = "Nightly v2"
			a.Nodes = a.Nodes[:1]
			updated, err := s.Save(ctx, a)
			So(err, ShouldBeNil)
			So(updated.ID, ShouldEqual, a.ID)
			So(updated.ArtifactSize.Nodes, ShouldEqual, 1)

			a.ID = "missing"
			_, err = s.Save(ctx, a)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			Convey("Another user cannot update it", func() {
				updated.UserGUID = "u2"
				_, err := s.Save(ctx, updated)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("List is newest first and scoped to the user", func() {
			_, _ = s.Save(ctx, sample("u1", "first"))
			_, _ = s.Save(ctx, sample("u1", "second"))
			_, _ = s.Save(ctx, sample("u2", "other"))

			list, err := s.List(ctx, "u1")
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 2)
			So(list[0].Title, ShouldEqual, "second")
			So(list[1].Title, ShouldEqual, "first")
			So(list[0].Edges, ShouldEqual, 1)

			empty, err := s.List(ctx, "nobody")
			So(err, ShouldBeNil)
			So(empty, ShouldNotBeNil)
			So(empty, ShouldBeEmpty)
		})

		Convey("Delete removes the artifact once", func() {
			a, _ := s.Save(ctx, sample("u1", "gone"))
			So(s.Delete(ctx, "u1", a.ID), ShouldBeNil)
			So(errors.Is(s.Delete(ctx, "u1", a.ID), ErrNotFound), ShouldBeTrue)
			_, err := s.Get(ctx, "u1", a.ID)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Clone picks the first free copy title", func() {
			a, _ := s.Save(ctx, sample("u1", "Report"))
			c1, err := s.Clone(ctx, "u1", a.ID, nil)
			So(err, ShouldBeNil)
			So(c1.Title, ShouldEqual, "Report - copy 1")
			So(c1.ID, ShouldNotEqual, a.ID)

			c2, err := s.Clone(ctx, "u1", a.ID, nil)
			So(err, ShouldBeNil)
			So(c2.Title, ShouldEqual, "Report - copy 2")
			So(c2.Document, ShouldEqual, "# doc")

			_, err = s.Clone(ctx, "u1", "missing", nil)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Copy titles are matched case-insensitively", func() {
			a, _ := s.Save(ctx, sample("u1", "Report"))
			_, err := s.Save(ctx, sample("u1", "REPORT - COPY 1"))
			So(err, ShouldBeNil)
			cp, err := s.Clone(ctx, "u1", a.ID, nil)
			So(err, ShouldBeNil)
			So(cp.Title, ShouldEqual, "Report - copy 2")
		})

		Convey("Clone saves what prepare made of the copy", func() {
			a, _ := s.Save(ctx, sample("u1", "Report"))
			cp, err := s.Clone(ctx, "u1", a.ID, func(c *Artifact) error {
				c.Document = "# " + c.Title
				return nil
			})
			So(err, ShouldBeNil)
			got, err := s.Get(ctx, "u1", cp.ID)
			So(err, ShouldBeNil)
			So(got.Document, ShouldEqual, "# Report - copy 1")
		})

		Convey("A failing prepare saves no copy", func() {
			a, _ := s.Save(ctx, sample("u1", "Report"))
			boom := errors.New("boom")
			_, err := s.Clone(ctx, "u1", a.ID, func(*Artifact) error { return boom })
			So(errors.Is(err, boom), ShouldBeTrue)

			_, err = s.FindByTitle(ctx, "u1", "Report - copy 1")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			list, err := s.List(ctx, "u1")
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
		})
	})
}

func TestOpenFile(t *testing.T) {
	Convey("Given a database file", t, func() {
		path := filepath.Join(t.TempDir(), "dags.db")
		s, err := Open(path)
		So(err, ShouldBeNil)
		_, err = s.Save(context.Background(), sample("u1", "kept"))
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		reopened, err := Open(path)
		So(err, ShouldBeNil)
		defer reopened.Close()
		list, err := reopened.List(context.Background(), "u1")
		So(err, ShouldBeNil)
		So(list, ShouldHaveLength, 1)

		_, err = Open(" ")
		So(errors.Is(err, ErrNoPath), ShouldBeTrue)
	})
}
