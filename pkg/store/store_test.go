package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/recallhq/recall/engine/content"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	// Not ":memory:": every pooled connection would get its own empty db.
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestRecord(t *testing.T, db *DB, r content.Record) content.Record {
	t.Helper()
	created, err := db.Insert(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := insertTestRecord(t, db, content.Record{
		Type:     "article",
		Title:    "Hello",
		Content:  "body",
		Metadata: map[string]any{"language": "en"},
		MetaTags: map[string]any{"language": "en"},
		Labels:   []string{"tech", "go"},
	})

	if created.ID == 0 {
		t.Fatal("no ID assigned")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := db.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.Title != "Hello" || got.Type != "article" {
		t.Errorf("record = %+v", got)
	}
	if got.Metadata["language"] != "en" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if len(got.Labels) != 2 {
		t.Errorf("labels = %v", got.Labels)
	}
}

func TestInsertNilMapsBecomeEmpty(t *testing.T) {
	db := openTestDB(t)

	created := insertTestRecord(t, db, content.Record{Type: "note", Content: "x"})
	if created.Metadata == nil || created.MetaTags == nil {
		t.Error("nil maps must round-trip as empty maps")
	}
	if created.Labels == nil {
		t.Error("nil labels must round-trip as empty slice")
	}
}

func TestGetByIDMissing(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v for missing ID", got)
	}
}

func TestGetByIDsBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := insertTestRecord(t, db, content.Record{Type: "note", Content: "a"})
	b := insertTestRecord(t, db, content.Record{Type: "note", Content: "b"})

	got, err := db.GetByIDs(ctx, []int64{a.ID, b.ID, 999})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records, want 2 (missing IDs skipped)", len(got))
	}

	empty, err := db.GetByIDs(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty ID list returned %d records", len(empty))
	}
}

func TestListFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insertTestRecord(t, db, content.Record{Type: "article", Content: "a", Labels: []string{"go"}})
	insertTestRecord(t, db, content.Record{Type: "note", Content: "b", Labels: []string{"go", "til"}})
	insertTestRecord(t, db, content.Record{Type: "note", Content: "c", Labels: []string{"rust"}})

	byType, err := db.List(ctx, content.ListFilter{Type: "note"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 2 {
		t.Errorf("type filter: %d records", len(byType))
	}

	byLabel, err := db.List(ctx, content.ListFilter{Labels: []string{"go"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byLabel) != 2 {
		t.Errorf("label filter: %d records", len(byLabel))
	}

	// Any-match: one of the requested labels suffices.
	anyMatch, err := db.List(ctx, content.ListFilter{Labels: []string{"rust", "til"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(anyMatch) != 2 {
		t.Errorf("any-match filter: %d records", len(anyMatch))
	}

	both, err := db.List(ctx, content.ListFilter{Type: "note", Labels: []string{"go"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 {
		t.Errorf("combined filter: %d records", len(both))
	}
}

func TestListPagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertTestRecord(t, db, content.Record{Type: "note", Content: "x"})
	}

	page, err := db.List(ctx, content.ListFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("limit: %d records", len(page))
	}

	rest, err := db.List(ctx, content.ListFilter{Limit: 10, Offset: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Errorf("offset: %d records", len(rest))
	}

	offsetOnly, err := db.List(ctx, content.ListFilter{Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(offsetOnly) != 1 {
		t.Errorf("offset without limit: %d records", len(offsetOnly))
	}
}

func TestUpdatePartial(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := insertTestRecord(t, db, content.Record{
		Type:    "note",
		Title:   "Before",
		Content: "keep me",
	})

	newTitle := "After"
	labels := []string{"updated"}
	got, err := db.Update(ctx, created.ID, content.Patch{Title: &newTitle, Labels: &labels})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("update returned nil for existing record")
	}
	if got.Title != "After" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Content != "keep me" {
		t.Errorf("unpatched field changed: %q", got.Content)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "updated" {
		t.Errorf("labels = %v", got.Labels)
	}
}

func TestUpdateEmptyPatch(t *testing.T) {
	db := openTestDB(t)

	created := insertTestRecord(t, db, content.Record{Type: "note", Content: "x"})
	got, err := db.Update(context.Background(), created.ID, content.Patch{})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Content != "x" {
		t.Errorf("empty patch must be a no-op read, got %+v", got)
	}
}

func TestUpdateMissing(t *testing.T) {
	db := openTestDB(t)

	title := "x"
	got, err := db.Update(context.Background(), 999, content.Patch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v for missing ID", got)
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := insertTestRecord(t, db, content.Record{Type: "note", Content: "x"})

	deleted, err := db.Delete(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("existing record reported as not deleted")
	}

	again, err := db.Delete(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again {
		t.Error("second delete reported success")
	}

	got, err := db.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("record still readable after delete")
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		insertTestRecord(t, db, content.Record{Type: "note", Content: "x"})
	}

	n, err := db.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d", n)
	}
}
