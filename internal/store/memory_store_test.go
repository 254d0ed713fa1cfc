package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreSetMergeKeepsSiblingFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("borrowers/b1", map[string]any{
		"name":          "Ana Reyes",
		"followUp":      true,
		"followUpCount": 3,
		"address":       map[string]any{"city": "Cebu", "zip": "6000"},
	})

	err := s.SetMerge(ctx, "borrowers/b1", map[string]any{
		"followUp":   false,
		"followUpAt": nil,
		"address":    map[string]any{"zip": "6014"},
	})
	if err != nil {
		t.Fatalf("SetMerge returned error: %v", err)
	}

	doc, err := s.Get(ctx, "borrowers/b1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc.Data["name"] != "Ana Reyes" || doc.Data["followUpCount"] != 3 {
		t.Fatalf("sibling fields were overwritten: %#v", doc.Data)
	}
	if doc.Data["followUp"] != false {
		t.Fatalf("expected followUp=false, got %#v", doc.Data["followUp"])
	}
	if v, ok := doc.Data["followUpAt"]; !ok || v != nil {
		t.Fatalf("expected followUpAt to be stored as null, got %#v (present=%v)", v, ok)
	}
	address := doc.Data["address"].(map[string]any)
	if address["city"] != "Cebu" || address["zip"] != "6014" {
		t.Fatalf("expected nested merge, got %#v", address)
	}
}

func TestMemoryStoreGetMissingDocument(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "borrowers/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRejectsCollectionPath(t *testing.T) {
	err := NewMemoryStore().SetMerge(context.Background(), "borrowers/b1/notes", map[string]any{"x": 1})
	if err == nil {
		t.Fatal("expected error for collection path")
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("borrowers/b1/notes/n1", map[string]any{"applicationId": "APP-1", "createdAt": "2024-01-01T00:00:00.000Z"})
	s.Seed("borrowers/b1/notes/n2", map[string]any{"applicationId": "APP-1", "createdAt": "2024-03-01T00:00:00.000Z"})
	s.Seed("borrowers/b1/notes/n3", map[string]any{"applicationId": "APP-2", "createdAt": "2024-02-01T00:00:00.000Z"})
	s.Seed("borrowers/b1/notes/n2/replies/r1", map[string]any{"applicationId": "APP-1", "createdAt": "2024-04-01T00:00:00.000Z"})
	s.Seed("borrowers/b2/notes/n4", map[string]any{"applicationId": "APP-1", "createdAt": "2024-05-01T00:00:00.000Z"})

	docs, err := s.List(ctx, "borrowers/b1/notes", ListOptions{
		WhereField: "applicationId",
		WhereValue: "APP-1",
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "n2" || docs[1].ID != "n1" {
		t.Fatalf("unexpected order: %s, %s", docs[0].ID, docs[1].ID)
	}

	limited, err := s.List(ctx, "borrowers/b1/notes", ListOptions{OrderBy: "createdAt", Limit: 1})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "n1" {
		t.Fatalf("expected oldest note only, got %#v", limited)
	}
}

func TestMemoryStoreCommitReplacesWhenNotMerging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("borrowers/b1/notes/n1", map[string]any{"note": "old", "isSeen": true})

	err := s.Commit(ctx, []Write{
		{Path: "borrowers/b1/notes/n1", Fields: map[string]any{"note": "new"}},
		{Path: "borrowers/b1/application/a1", Fields: map[string]any{"updatedAt": "now"}, Merge: true},
	})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	doc, _ := s.Get(ctx, "borrowers/b1/notes/n1")
	if _, ok := doc.Data["isSeen"]; ok {
		t.Fatalf("expected replace write to drop isSeen: %#v", doc.Data)
	}
	docs, err := s.GetAll(ctx, []string{"borrowers/b1/application/a1", "borrowers/b1/application/missing"})
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	if docs[0] == nil || docs[1] != nil {
		t.Fatalf("unexpected GetAll result: %#v", docs)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("users/u1", map[string]any{"displayName": "Jane"})

	doc, _ := s.Get(ctx, "users/u1")
	doc.Data["displayName"] = "mutated"

	again, _ := s.Get(ctx, "users/u1")
	if again.Data["displayName"] != "Jane" {
		t.Fatalf("stored document was mutated through a returned copy")
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		wantErr    bool
	}{
		{path: "borrowers/b1", collection: "borrowers", id: "b1"},
		{path: "borrowers/b1/kyc/k1", collection: "borrowers/b1/kyc", id: "k1"},
		{path: "borrowers", wantErr: true},
		{path: "borrowers//kyc/k1", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			collection, id, err := SplitPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if collection != tt.collection || id != tt.id {
				t.Fatalf("got (%q, %q), want (%q, %q)", collection, id, tt.collection, tt.id)
			}
		})
	}
}
