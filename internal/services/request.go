package services

import (
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

var errNotAuthenticated = apierr.Unauthorized("unauthorized", errors.New("not authenticated"))

func requestUserID(dbc dbctx.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, errNotAuthenticated
	}
	return rd.UserID, nil
}

func notFound(what string) error {
	return apierr.NotFound(what+"_not_found", errors.New(what+" not found"))
}
