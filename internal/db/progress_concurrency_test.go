//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/db"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/testutil/testdb"
)

func TestAwardPoints_Parallel(t *testing.T) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	store := db.New(h.DB)
	st1 := mustSeedUser(t, store, "Ученик 1", models.Student)
	st2 := mustSeedUser(t, store, "Ученик 2", models.Student)
	eng := gamification.NewEngine(store, zap.NewNop(), time.UTC)

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = eng.AwardPoints(ctx, gamification.Award{UserID: st1, Points: 10, Source: gamification.SourceAssignment})
		}()
		go func() {
			defer wg.Done()
			_, _ = eng.AwardPoints(ctx, gamification.Award{UserID: st2, Points: 10, Source: gamification.SourceAssignment})
		}()
	}
	wg.Wait()

	for _, id := range []uuid.UUID{st1, st2} {
		p, err := store.GetProgress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.TotalPoints != 500 || p.CurrentLevel != 4 || p.CurrentStreak != 1 {
			t.Fatalf("ожидали 500 баллов / 4 уровень / серия 1, получили %+v", p)
		}
		hist, err := store.PointsHistory(ctx, id, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(hist) != 50 {
			t.Fatalf("ожидали 50 записей журнала, получили %d", len(hist))
		}
	}
}

func mustSeedUser(t *testing.T, store *db.Store, name string, role models.Role) uuid.UUID {
	t.Helper()
	u, err := store.CreateUser(context.Background(), models.User{FullName: name, Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return u.ID
}
