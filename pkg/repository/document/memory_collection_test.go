package document

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedMemory(t *testing.T, docs ...Document) *MemoryCollection {
	t.Helper()
	m := NewMemoryCollection()
	if _, err := m.InsertMany(context.Background(), docs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return m
}

func TestMemoryCollection_Operators(t *testing.T) {
	m := seedMemory(t,
		Document{"name": "a", "age": 10},
		Document{"name": "b", "age": 20, "vip": true},
		Document{"name": "c", "age": int64(30)},
	)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"empty matches all", Filter{}, 3},
		{"equality across int types", Filter{"age": 30}, 1},
		{"missing equals nil", Filter{"vip": nil}, 2},
		{"ne", Filter{"name": map[string]interface{}{"$ne": "a"}}, 2},
		{"in", Filter{"name": bson.M{"$in": []string{"a", "c"}}}, 2},
		{"nin", Filter{"name": Filter{"$nin": []interface{}{"a"}}}, 2},
		{"range", Filter{"age": map[string]interface{}{"$gte": 15, "$lt": 30}}, 1},
		{"exists", Filter{"vip": map[string]interface{}{"$exists": true}}, 1},
		{"combined", Filter{"age": map[string]interface{}{"$gt": 5}, "name": "b"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := m.CountDocuments(ctx, tt.filter, 0)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Fatalf("got %d want %d", n, tt.want)
			}
		})
	}

	if n, _ := m.CountDocuments(ctx, Filter{}, 1); n != 1 {
		t.Fatalf("expected count to stop at limit, got %d", n)
	}
}

func TestMemoryCollection_FindOptions(t *testing.T) {
	m := seedMemory(t,
		Document{"name": "b", "rank": 2},
		Document{"name": "a", "rank": 2},
		Document{"name": "c"},
		Document{"name": "d", "rank": 1},
	)
	ctx := context.Background()

	docs, err := m.Find(ctx, Filter{}, FindOptions{
		Sort:       []Sort{{Field: "rank", Order: SortAsc}, {Field: "name", Order: SortDesc}},
		Projection: &Projection{Fields: []string{"name"}, ExcludeID: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range docs {
		if len(d) != 1 {
			t.Fatalf("expected projected document, got %v", d)
		}
		names = append(names, d["name"].(string))
	}
	if got := names[0] + names[1] + names[2] + names[3]; got != "cdba" {
		t.Fatalf("unexpected order %v", names)
	}

	window, _ := m.Find(ctx, Filter{}, FindOptions{Sort: []Sort{{Field: "name", Order: SortAsc}}, Skip: 1, Limit: 2})
	if len(window) != 2 || window[0]["name"] != "b" || window[1]["name"] != "c" {
		t.Fatalf("unexpected window %v", window)
	}
	if past, _ := m.Find(ctx, Filter{}, FindOptions{Skip: 10}); len(past) != 0 {
		t.Fatalf("expected nothing past the end, got %v", past)
	}
}

func TestMemoryCollection_CopiesDocuments(t *testing.T) {
	m := NewMemoryCollection()
	ctx := context.Background()
	nested := Document{"city": "Rome"}
	id, _ := m.InsertOne(ctx, Document{"address": nested})
	nested["city"] = "Milan"

	doc, err := m.FindOne(ctx, Filter{IDField: id}, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc["address"].(Document)["city"] = "Turin"

	again, _ := m.FindOne(ctx, Filter{IDField: id}, nil)
	if again["address"].(Document)["city"] != "Rome" {
		t.Fatalf("stored document leaked: %v", again)
	}
}

func TestMemoryCollection_MutationsAndErrors(t *testing.T) {
	m := NewMemoryCollection()
	ctx := context.Background()
	oid := primitive.NewObjectID()

	if _, err := m.InsertOne(ctx, Document{IDField: oid, "v": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.InsertOne(ctx, Document{IDField: oid}); err == nil {
		t.Fatal("expected duplicate id error")
	}

	res, _ := m.UpdateOne(ctx, Filter{IDField: oid}, Document{"v": 1})
	if res.Matched != 1 || res.Modified != 0 {
		t.Fatalf("expected unchanged match, got %+v", res)
	}
	res, _ = m.UpdateOne(ctx, Filter{"v": 99}, Document{"v": 2})
	if res.Matched != 0 {
		t.Fatalf("expected no match, got %+v", res)
	}

	if _, err := m.FindOne(ctx, Filter{"v": 99}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := m.DeleteOne(ctx, Filter{"v": 99}); n != 0 {
		t.Fatalf("expected nothing deleted, got %d", n)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Find(cancelled, Filter{}, FindOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestMemoryCollection_ConcurrentFindAndUpdate(t *testing.T) {
	m := NewMemoryCollection()
	ctx := context.Background()
	id, err := m.InsertOne(ctx, Document{"n": 0, "tags": Document{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.InsertOne(ctx, Document{"n": -1}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := m.UpdateOne(ctx, Filter{IDField: id}, Document{"n": i, "tags": Document{"k": i}}); err != nil {
				t.Errorf("UpdateOne: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			docs, err := m.Find(ctx, Filter{}, FindOptions{Sort: []Sort{{Field: "n", Order: SortAsc}}})
			if err != nil {
				t.Errorf("Find: %v", err)
				return
			}
			if len(docs) != 2 {
				t.Errorf("expected 2 documents, got %d", len(docs))
				return
			}
		}
	}()
	wg.Wait()

	doc, err := m.FindOne(ctx, Filter{IDField: id}, nil)
	if err != nil || doc["n"] != 199 {
		t.Fatalf("expected last update to win, got %v %v", doc, err)
	}
}
