package testutil

import (
	"context"
	"testing"
)

func TestStubDBUpsertsAndSelectsBuckets(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	for _, payload := range []string{`{"a":1}`, `{"a":2}`} {
		if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2)`, "design", []byte(payload)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if got, _ := conn.Payload("design"); string(got) != `{"a":2}` {
		t.Fatalf("expected overwritten payload, got %s", got)
	}

	conn.Seed("part", []byte(`{}`))
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var buckets []string
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		buckets = append(buckets, bucket)
	}
	if len(buckets) != 2 || buckets[0] != "design" || buckets[1] != "part" {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if len(conn.Execs) != 2 {
		t.Fatalf("expected recorded execs, got %v", conn.Execs)
	}
}

func TestStubDBFailureSwitches(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	t.Cleanup(func() { _ = db.Close() })

	conn.FailBucket = "design"
	if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2)`, "design", []byte(`{}`)); err == nil {
		t.Fatalf("expected bucket failure")
	}
	conn.FailQuery = true
	if _, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`); err == nil {
		t.Fatalf("expected query failure")
	}
}
