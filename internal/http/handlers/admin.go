package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/http/response"
	"github.com/yungbote/coursebuilder-backend/internal/services"
)

type AdminHandler struct {
	admin services.AdminService
}

func NewAdminHandler(admin services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.admin.Dashboard(reqDBC(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, stats)
}

// GET /api/admin/users?search=&plan=&role=&suspended=&limit=&offset=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	filter := repos.UserListFilter{
		Search: c.Query("search"),
		Plan:   c.Query("plan"),
		Role:   c.Query("role"),
	}
	if raw := c.Query("suspended"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_suspended", err)
			return
		}
		filter.Suspended = &v
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	page, err := h.admin.ListUsers(reqDBC(c), filter)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, page)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	u, err := h.admin.GetUser(reqDBC(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

func (h *AdminHandler) SetCredits(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Credits *int `json:"credits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissing("credits"))
		return
	}
	h.respondUser(c)(h.admin.SetCredits(reqDBC(c), id, *req.Credits))
}

func (h *AdminHandler) SetMembership(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.MembershipUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.respondUser(c)(h.admin.SetMembership(reqDBC(c), id, req))
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.respondUser(c)(h.admin.SetRole(reqDBC(c), id, req.Role))
}

func (h *AdminHandler) Suspend(c *gin.Context)   { h.setSuspended(c, true) }
func (h *AdminHandler) Unsuspend(c *gin.Context) { h.setSuspended(c, false) }

func (h *AdminHandler) setSuspended(c *gin.Context, suspended bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	h.respondUser(c)(h.admin.SetSuspended(reqDBC(c), id, suspended))
}

func (h *AdminHandler) respondUser(c *gin.Context) func(any, error) {
	return func(u any, err error) {
		if err != nil {
			response.RespondServiceError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"user": u})
	}
}
