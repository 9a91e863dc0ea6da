package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/gin-gonic/gin"
)

// AnnouncementLister lists stored winner announcements
type AnnouncementLister interface {
	ListAnnouncements(ctx context.Context, page, limit int) ([]*models.Announcement, error)
}

// AnnouncementHandler handles winner announcement HTTP requests
type AnnouncementHandler struct {
	announcements AnnouncementLister
}

// NewAnnouncementHandler creates a new AnnouncementHandler
func NewAnnouncementHandler(announcements AnnouncementLister) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// ListAnnouncements handles GET /lottery/announcements?page=&limit=
func (h *AnnouncementHandler) ListAnnouncements(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	announcements, err := h.announcements.ListAnnouncements(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, "list announcements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": announcements, "page": page})
}
