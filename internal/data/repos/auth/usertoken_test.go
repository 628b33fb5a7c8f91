package auth

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

func TestUserTokenRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewUserTokenRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, "tokens@example.com")
	now := time.Now().UTC()

	_, err := repo.Create(dbc, []*types.UserToken{
		{UserID: u.ID, RefreshToken: "live", ExpiresAt: now.Add(time.Hour)},
		{UserID: u.ID, RefreshToken: "stale", ExpiresAt: now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tok, err := repo.GetByRefreshToken(dbc, "live")
	if err != nil || tok == nil || tok.UserID != u.ID {
		t.Fatalf("GetByRefreshToken: tok=%+v err=%v", tok, err)
	}

	n, err := repo.DeleteExpired(dbc, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}

	if err := repo.DeleteByRefreshTokens(dbc, []string{"live"}); err != nil {
		t.Fatalf("DeleteByRefreshTokens: %v", err)
	}
	tok, err = repo.GetByRefreshToken(dbc, "live")
	if err != nil || tok != nil {
		t.Fatalf("expected token gone, got %+v err=%v", tok, err)
	}
}
