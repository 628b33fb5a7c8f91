package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/http/response"
	"github.com/yungbote/coursebuilder-backend/internal/services"
)

type LearningHandler struct {
	learning services.LearningService
}

func NewLearningHandler(learning services.LearningService) *LearningHandler {
	return &LearningHandler{learning: learning}
}

func (h *LearningHandler) ListCourses(c *gin.Context) {
	courses, err := h.learning.ListCourses(reqDBC(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

func (h *LearningHandler) GetCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	course, err := h.learning.GetCourse(reqDBC(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

func (h *LearningHandler) DeleteCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.learning.DeleteCourse(reqDBC(c), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LearningHandler) SetCourseStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	status, ok := bindStatus(c)
	if !ok {
		return
	}
	course, err := h.learning.SetCourseStatus(reqDBC(c), id, status)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

func (h *LearningHandler) SetModuleStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	status, ok := bindStatus(c)
	if !ok {
		return
	}
	m, err := h.learning.SetModuleStatus(reqDBC(c), id, status)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"module": m})
}

func (h *LearningHandler) GetLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	l, err := h.learning.GetLesson(reqDBC(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": l})
}

func (h *LearningHandler) DeleteLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.learning.DeleteLesson(reqDBC(c), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LearningHandler) SetLessonStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	status, ok := bindStatus(c)
	if !ok {
		return
	}
	l, err := h.learning.SetLessonStatus(reqDBC(c), id, status)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": l})
}

func (h *LearningHandler) ListRoadmaps(c *gin.Context) {
	roadmaps, err := h.learning.ListRoadmaps(reqDBC(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"roadmaps": roadmaps})
}

func (h *LearningHandler) GetRoadmap(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	r, err := h.learning.GetRoadmap(reqDBC(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"roadmap": r})
}

func (h *LearningHandler) DeleteRoadmap(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.learning.DeleteRoadmap(reqDBC(c), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LearningHandler) SetRoadmapStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	status, ok := bindStatus(c)
	if !ok {
		return
	}
	r, err := h.learning.SetRoadmapStatus(reqDBC(c), id, status)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"roadmap": r})
}

func (h *LearningHandler) ListRoadmapCourses(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	courses, err := h.learning.ListRoadmapCourses(reqDBC(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

// PATCH /api/roadmaps/:id/nodes/:node_id/status
func (h *LearningHandler) SetNodeStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	status, ok := bindStatus(c)
	if !ok {
		return
	}
	node, roadmapStatus, err := h.learning.SetNodeStatus(reqDBC(c), id, c.Param("node_id"), status)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"node": node, "roadmap_status": roadmapStatus})
}

// POST /api/roadmaps/:id/nodes/:node_id/course
func (h *LearningHandler) LinkNodeCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		CourseID uuid.UUID `json:"course_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, err := h.learning.LinkNodeCourse(reqDBC(c), id, c.Param("node_id"), req.CourseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"node": node})
}
