package inmemory

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestState_SetValueReplacesHash(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	s, err := NewState(client, NewNamespace("journey", "c1", "step"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Key() != "STATE:journey:c1:step" {
		t.Fatalf("unexpected key %q", s.Key())
	}

	if v, err := s.GetValue(ctx); err != nil || v != nil {
		t.Fatalf("expected nil for missing hash, got %v %v", v, err)
	}

	if err := s.SetValue(ctx, map[string]interface{}{"a": "1", "b": 2}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := s.SetValue(ctx, map[string]interface{}{"c": "3"}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	got, err := s.GetValue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, map[string]string{"c": "3"}) {
		t.Fatalf("expected full replacement, got %v", got)
	}
	if ttl := mr.TTL(s.Key()); ttl != 0 {
		t.Fatalf("expected no ttl, got %v", ttl)
	}
}

func TestState_FieldWritesKeepOtherFields(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := NewState(client, NewNamespace("journey", "c2"))

	if err := s.SetFields(ctx, map[string]interface{}{"a": "1", "b": "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetField(ctx, "b", "20"); err != nil {
		t.Fatal(err)
	}

	v, found, err := s.GetField(ctx, "b")
	if err != nil || !found || v != "20" {
		t.Fatalf("GetField: %q %v %v", v, found, err)
	}
	if _, found, err := s.GetField(ctx, "missing"); err != nil || found {
		t.Fatalf("expected missing field, got found=%v err=%v", found, err)
	}

	fields, err := s.GetFields(ctx, "b", "missing", "a")
	if err != nil {
		t.Fatal(err)
	}
	want := []FieldValue{
		{Name: "b", Value: "20", Found: true},
		{Name: "missing"},
		{Name: "a", Value: "1", Found: true},
	}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("got %+v want %+v", fields, want)
	}
}

func TestState_TTLRefreshedOnEveryWrite(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := NewState(client, NewNamespace("journey", "c3"), WithTTL(30*time.Second))

	if err := s.SetValue(ctx, map[string]interface{}{"a": "1"}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(20 * time.Second)
	if err := s.SetField(ctx, "b", "2"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(s.Key()); ttl != 30*time.Second {
		t.Fatalf("expected ttl refreshed to 30s, got %v", ttl)
	}

	mr.FastForward(31 * time.Second)
	exists, err := s.Exists(ctx)
	if err != nil || exists {
		t.Fatalf("expected hash to expire, exists=%v err=%v", exists, err)
	}
}

func TestState_ResetAndDelete(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := NewState(client, NewNamespace("journey", "c4"))

	if err := s.ResetValue(ctx); err != nil {
		t.Fatalf("reset of missing entry must be a no-op: %v", err)
	}
	_ = s.SetField(ctx, "a", "1")
	exists, _ := s.Exists(ctx)
	if !exists {
		t.Fatal("expected hash to exist")
	}
	if err := s.ResetValue(ctx); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(s.Key()) {
		t.Fatal("expected hash to be removed")
	}

	for _, id := range []string{"x", "y"} {
		st, _ := NewState(client, NewNamespace("journey", id))
		_ = st.SetField(ctx, "f", "v")
	}
	all, _ := NewState(client, NewNamespace("journey", Wildcard))
	if n, err := all.Delete(ctx); err != nil || n != 2 {
		t.Fatalf("wildcard delete: %d %v", n, err)
	}
}

func TestState_EmptyWrites(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	s, _ := NewState(client, NewNamespace("journey", "c5"))

	_ = s.SetField(ctx, "a", "1")
	if err := s.SetFields(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(s.Key()) {
		t.Fatal("empty SetFields must not touch the hash")
	}
	if err := s.SetValue(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(s.Key()) {
		t.Fatal("empty SetValue must clear the hash")
	}
	if fields, err := s.GetFields(ctx); err != nil || len(fields) != 0 {
		t.Fatalf("expected no fields, got %v %v", fields, err)
	}
}
