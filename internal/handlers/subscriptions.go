package handlers

import (
	"net/http"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/query"
)

// SubscriptionHandler manages subscriber to channel edges.
type SubscriptionHandler struct {
	Subscriptions SubscriptionStore
	Users         UserStore
	Catalog       Catalog
}

type subscriptionResponse struct {
	Subscribed bool `json:"subscribed"`
}

// Toggle handles POST /subscription/c/{channelID}.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	channelID, err := pathID(r, "channelID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	subscriber := viewerID(ctx)
	if channelID == subscriber {
		logger.Warn("self subscription rejected")
		respondError(ctx, w, badRequest("You cannot subscribe to your own channel"))
		return
	}

	if _, err := h.Users.FindByID(ctx, channelID); err != nil {
		respondError(ctx, w, storeError(err, "Channel"))
		return
	}

	subscribed, err := h.Subscriptions.Toggle(ctx, subscriber, channelID)
	if err != nil {
		respondError(ctx, w, storeError(err, "Channel"))
		return
	}
	metrics.ObserveToggle("subscription", subscribed)

	message := "Unsubscribed successfully"
	if subscribed {
		message = "Subscribed successfully"
	}
	respondSuccess(ctx, w, http.StatusOK, subscriptionResponse{Subscribed: subscribed}, message)
}

// Subscribers handles GET /subscription/u/{channelID}.
func (h SubscriptionHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channelID, err := pathID(r, "channelID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	params, err := query.Parse(r.URL.Query(), query.SubscriptionSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	page, err := h.Catalog.ChannelSubscribers(ctx, channelID, params)
	if err != nil {
		respondError(ctx, w, storeError(err, "Channel"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Subscribers fetched successfully")
}

// SubscribedChannels handles GET /subscription/subscribed-channels/{subscriberID}.
func (h SubscriptionHandler) SubscribedChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subscriberID, err := pathID(r, "subscriberID")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	params, err := query.Parse(r.URL.Query(), query.SubscriptionSorts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	page, err := h.Catalog.SubscribedChannels(ctx, subscriberID, params)
	if err != nil {
		respondError(ctx, w, storeError(err, "User"))
		return
	}
	respondSuccess(ctx, w, http.StatusOK, page, "Subscribed channels fetched successfully")
}
