package bucket

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkAllow(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()

	for b.Loop() {
		_, _ = store.Allow(ctx, "rl:ip:bench:read", 1000, time.Minute)
	}
}

func BenchmarkAllow_Parallel(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Allow(ctx, "rl:ip:bench:read", 1000, time.Minute)
		}
	})
}

// Many clients, each with a handful of requests, as behind a busy proxy.
func BenchmarkAllow_HighCardinality_Parallel(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()
	var counter atomic.Int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("rl:ip:10.0.%d.%d:write", (i/256)%256, i%256)
			_, _ = store.Allow(ctx, key, 100, time.Minute)
		}
	})
}
