package activitylog_test

import (
	"context"
	"testing"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

func BenchmarkRecord(b *testing.B) {
	log := activitylog.New(activitylog.DefaultCapacity, nil, nil)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Record(ctx, domain.LevelInfo, domain.CategorySystem, "tick", "", "", nil)
	}
}

func BenchmarkGetAll(b *testing.B) {
	log := activitylog.New(activitylog.DefaultCapacity, nil, nil)
	ctx := context.Background()
	for i := 0; i < activitylog.DefaultCapacity; i++ {
		log.Record(ctx, domain.LevelInfo, domain.CategorySystem, "tick", "", "", nil)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = log.GetAll()
	}
}
