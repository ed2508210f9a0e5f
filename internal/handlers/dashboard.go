package handlers

import (
	"net/http"

	"github.com/videostream/backend/internal/query"
)

// DashboardHandler serves creator statistics.
type DashboardHandler struct {
	Catalog Catalog
}

// Stats handles GET /dashboard/stats for the authenticated creator.
func (h DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.Catalog.ChannelStats(ctx, viewerID(ctx))
	if err != nil {
		respondError(ctx, w, storeError(err, "Channel"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, stats, "Channel stats fetched successfully")
}

// Videos handles GET /dashboard/videos/{channelID}.
func (h DashboardHandler) Videos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channelID, err := pathID(r, "channelID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	params, err := query.Parse(r.URL.Query(), query.VideoSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	page, err := h.Catalog.ChannelVideos(ctx, channelID, params)
	if err != nil {
		respondError(ctx, w, storeError(err, "Channel"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Channel videos fetched successfully")
}
