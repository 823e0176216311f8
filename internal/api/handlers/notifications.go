package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/notification"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NotificationList is the body of GET /notifications.
type NotificationList struct {
	Items      []notification.Notification `json:"items"`
	Pagination Pagination                  `json:"pagination"`
}

// ListNotifications handles GET /notifications.
func (s *Server) ListNotifications(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	page, perPage = defaultPagination(page, perPage)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread_only"))

	items, total, err := s.inbox.List(c.Request.Context(), actor.ID, unreadOnly, perPage, (page-1)*perPage)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	c.JSON(http.StatusOK, NotificationList{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: (total + perPage - 1) / perPage,
		},
	})
}

// GetUnreadCount handles GET /notifications/unread-count.
func (s *Server) GetUnreadCount(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	count, err := s.inbox.UnreadCount(c.Request.Context(), actor.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkNotificationRead handles POST /notifications/{notification_id}/read.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	if err := s.inbox.MarkRead(c.Request.Context(), actor.ID, c.Param("notification_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead handles POST /notifications/read-all.
func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	n, err := s.inbox.MarkAllRead(c.Request.Context(), actor.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
