package http

import (
	"github.com/gin-gonic/gin"

	historyUC "github.com/khoahotran/tagvault/internal/application/usecase/history"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type RSSHandler struct {
	rssUseCase *historyUC.RSSUseCase
	logger     logger.Logger
}

func NewRSSHandler(uc *historyUC.RSSUseCase, log logger.Logger) *RSSHandler {
	return &RSSHandler{
		rssUseCase: uc,
		logger:     log,
	}
}

func (h *RSSHandler) RunsFeed(c *gin.Context) {

	feed, err := h.rssUseCase.Execute(c.Request.Context())
	if err != nil {
		c.Error(apperror.NewInternal("failed to generate runs feed", err))
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")

	if err := feed.WriteRss(c.Writer); err != nil {

		h.logger.Error("Failed to write runs feed to response", err)
	}
}
