package handler

import (
	"net/http"

	"rideshare/internal/chat/service"
	httputil "rideshare/pkg/http"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
	"rideshare/pkg/realtime"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type MessageHandler struct {
	service  service.MessageService
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
	log      *logger.Logger
}

func NewMessageHandler(service service.MessageService, hub *realtime.Hub, upgrader *websocket.Upgrader, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service:  service,
		hub:      hub,
		upgrader: upgrader,
		log:      log,
	}
}

func (h *MessageHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "Send", err)
		return
	}

	var req model.SendMessageRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "Send", err)
		return
	}

	msg, err := h.service.Send(r.Context(), sess, &req)
	if err != nil {
		h.writeError(w, "Send", err)
		return
	}

	if err := httputil.WriteCreated(w, msg); err != nil {
		h.log.Error("failed to write created response", "handler", "Send", "operation", "WriteCreated", "error", err)
	}
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "Conversation", err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Conversation", err)
		return
	}

	messages, err := h.service.Conversation(r.Context(), sess, ps.ByName("userId"), limit, offset)
	if err != nil {
		h.writeError(w, "Conversation", err)
		return
	}

	if err := httputil.WriteSuccess(w, messages); err != nil {
		h.log.Error("failed to write success response", "handler", "Conversation", "operation", "WriteSuccess", "error", err)
	}
}

func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "MarkConversationRead", err)
		return
	}

	n, err := h.service.MarkConversationRead(r.Context(), sess, ps.ByName("userId"))
	if err != nil {
		h.writeError(w, "MarkConversationRead", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"updated": n}); err != nil {
		h.log.Error("failed to write success response", "handler", "MarkConversationRead", "operation", "WriteSuccess", "error", err)
	}
}

func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "UnreadCount", err)
		return
	}

	n, err := h.service.UnreadCount(r.Context(), sess)
	if err != nil {
		h.writeError(w, "UnreadCount", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"unread": n}); err != nil {
		h.log.Error("failed to write success response", "handler", "UnreadCount", "operation", "WriteSuccess", "error", err)
	}
}

// Subscribe upgrades to a websocket and holds the caller's subscription
// until either side closes it.
func (h *MessageHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "Subscribe", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("Websocket upgrade failed", "user_id", sess.UserID, "error", err)
		return
	}

	sub := realtime.NewSubscription(h.hub, conn, sess.UserID)
	defer sub.Stop()
	if err := sub.Start(); err != nil {
		h.log.Error("Failed to start subscription", "user_id", sess.UserID, "error", err)
		return
	}
	h.log.Info("Subscription started", "user_id", sess.UserID, "subscribers", h.hub.Subscribers(sess.UserID))

	<-sub.Done()
	sub.Wait()
	h.log.Info("Subscription ended", "user_id", sess.UserID)
}

func (h *MessageHandler) SubscribeHandler() http.Handler {
	return http.HandlerFunc(h.Subscribe)
}

func (h *MessageHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/messages", h.Send)
	router.GET("/api/v1/messages/unread", h.UnreadCount)
	router.GET("/api/v1/messages/conversation/:userId", h.Conversation)
	router.POST("/api/v1/messages/conversation/:userId/read", h.MarkConversationRead)
}
