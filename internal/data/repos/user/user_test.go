package user

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

func TestUserRepoLookups(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	cust := "cus_123"
	seeded := testutil.SeedUser(t, ctx, db, "userrepo@example.com", func(u *types.User) {
		u.StripeCustomerID = &cust
	})

	got, err := repo.GetByEmail(dbc, "  UserRepo@Example.com ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got == nil || got.ID != seeded.ID {
		t.Fatalf("GetByEmail: unexpected result: %+v", got)
	}

	got, err = repo.GetByStripeCustomerID(dbc, cust)
	if err != nil || got == nil || got.ID != seeded.ID {
		t.Fatalf("GetByStripeCustomerID: got=%+v err=%v", got, err)
	}

	missing, err := repo.GetByEmail(dbc, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("GetByEmail (missing): got=%+v err=%v", missing, err)
	}

	exists, err := repo.EmailExists(dbc, seeded.Email)
	if err != nil || !exists {
		t.Fatalf("EmailExists: exists=%v err=%v", exists, err)
	}
}

func TestUserRepoConsumeCreditsIsGuarded(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, "credits@example.com", func(u *types.User) { u.Credits = 15 })

	ok, err := repo.ConsumeCredits(dbc, u.ID, 10)
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	ok, err = repo.ConsumeCredits(dbc, u.ID, 10)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Fatalf("second consume should be rejected by the balance guard")
	}

	got, err := repo.GetByID(dbc, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Credits != 5 || got.TotalCreditsUsed != 10 {
		t.Fatalf("unexpected balance: credits=%d used=%d", got.Credits, got.TotalCreditsUsed)
	}
}

func TestUserRepoListAndStats(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	testutil.SeedUser(t, ctx, db, "alice@example.com")
	testutil.SeedUser(t, ctx, db, "bob@example.com", func(u *types.User) {
		u.MembershipPlan = "premium"
		u.MembershipStatus = "ACTIVE"
	})
	testutil.SeedUser(t, ctx, db, "carol@example.com", func(u *types.User) {
		u.Role = "admin"
		u.Suspended = true
	})

	list, total, err := repo.List(dbc, ListFilter{Search: "ali"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].Email != "alice@example.com" {
		t.Fatalf("List: total=%d list=%+v", total, list)
	}

	suspended := true
	_, total, err = repo.List(dbc, ListFilter{Suspended: &suspended})
	if err != nil || total != 1 {
		t.Fatalf("List suspended: total=%d err=%v", total, err)
	}

	st, err := repo.Stats(dbc, time.Now().UTC())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 3 || st.Premium != 1 || st.Free != 2 || st.Suspended != 1 || st.Admins != 1 || st.NewLast7d != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
