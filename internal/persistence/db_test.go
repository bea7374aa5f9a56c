package persistence_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/persistence"
	"github.com/talgya/mini-town/internal/state"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func openDB(t *testing.T) (*persistence.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "town.db")
	db, err := persistence.Open(path)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestAgentSnapshots(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	alice := agents.NewAgent("alice", "Alice", "", "Apartment_1A", state.Default())
	alice.Mutate(func(st *state.Internal, loc *string) {
		st.Money = 42
		*loc = "Cafe"
	})
	alice.UpdateRelationship("bob", 10, 20)
	bob := agents.NewAgent("bob", "Bob", "", "Park", state.Default())

	t.Run("saved agents load back in id order", func(t *testing.T) {
		gt.NoError(t, db.SaveAgents(ctx, []agents.View{bob.View(), alice.View()})).Required()

		views, err := db.LoadAgents(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, views).Length(2)
		gt.Value(t, views[0].ID).Equal("alice")
		gt.Value(t, views[0].Location).Equal("Cafe")
		gt.Value(t, views[0].Home).Equal("Apartment_1A")
		gt.Value(t, views[0].State.Money).Equal(42)
		gt.Value(t, views[0].Relationships["bob"]).Equal(agents.Relationship{Affinity: 10, Familiarity: 20})
	})

	t.Run("saving replaces the previous snapshot", func(t *testing.T) {
		gt.NoError(t, db.SaveAgents(ctx, []agents.View{bob.View()})).Required()
		views, err := db.LoadAgents(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, views).Length(1)
		gt.Value(t, views[0].ID).Equal("bob")
	})

	t.Run("a loaded snapshot restores a fresh agent", func(t *testing.T) {
		gt.NoError(t, db.SaveAgents(ctx, []agents.View{alice.View()})).Required()
		views, err := db.LoadAgents(ctx)
		gt.NoError(t, err).Required()

		fresh := agents.NewAgent("alice", "Alice", "", "Apartment_1A", state.Default())
		gt.Bool(t, fresh.Restore(views[0].Location, views[0].State, views[0].Relationships)).True()
		gt.Value(t, fresh.CurrentLocation()).Equal("Cafe")
		gt.Value(t, fresh.State().Money).Equal(42)
		r, ok := fresh.Relationship("bob")
		gt.Bool(t, ok).True()
		gt.Value(t, r.Familiarity).Equal(20)
	})
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	gt.NoError(t, db.SaveEvents(ctx, []engine.Entry{
		{Time: t0, AgentID: "alice", Category: engine.CategoryAction, Description: "Alice waited"},
		{Time: t0.Add(time.Minute), AgentID: "bob", Category: engine.CategoryDialogue, Description: "Bob said hi"},
		{Time: t0.Add(2 * time.Minute), Category: engine.CategorySeason, Description: "the season turned"},
	})).Required()

	t.Run("recent events come newest first", func(t *testing.T) {
		got, err := db.RecentEvents(ctx, "", 2)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2)
		gt.Value(t, got[0].Category).Equal(engine.CategorySeason)
		gt.Bool(t, got[1].Time.Equal(t0.Add(time.Minute))).True()
	})

	t.Run("events can be filtered by agent", func(t *testing.T) {
		got, err := db.RecentEvents(ctx, "alice", 10)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(1)
		gt.Value(t, got[0].Description).Equal("Alice waited")
	})

	t.Run("an empty batch is a no-op", func(t *testing.T) {
		gt.NoError(t, db.SaveEvents(ctx, nil))
	})
}

func TestMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("missing keys report ErrNoMeta", func(t *testing.T) {
		db, _ := openDB(t)
		_, err := db.GetMeta(ctx, "nope")
		gt.Bool(t, errors.Is(err, persistence.ErrNoMeta)).True()

		_, ok, err := db.SavedTime(ctx)
		gt.NoError(t, err)
		gt.Bool(t, ok).False()
	})

	t.Run("the saved clock survives a reopen", func(t *testing.T) {
		db, path := openDB(t)
		gt.NoError(t, db.SaveMeta(ctx, engine.MetaSimTime, t0.Format(time.RFC3339))).Required()
		gt.NoError(t, db.SaveMeta(ctx, engine.MetaSimTime, t0.Add(time.Hour).Format(time.RFC3339))).Required()
		gt.NoError(t, db.Close()).Required()

		again, err := persistence.Open(path)
		gt.NoError(t, err).Required()
		defer again.Close()
		ts, ok, err := again.SavedTime(ctx)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
		gt.Bool(t, ts.Equal(t0.Add(time.Hour))).True()
	})
}
