// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/hashicorp/go-multierror"

	"github.com/rangeforge/pulse/database/records"
	"github.com/rangeforge/pulse/model"
)

func New(cfg *Config) *Hub {
	if cfg == nil {
		cfg = new(Config)
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}

	return &Hub{
		cfg:      cfg,
		conns:    make(map[*hubConn]struct{}),
		started:  make(chan struct{}),
		pingDone: make(chan struct{}),
	}
}

// ListenAndServe binds the port and serves until the context is cancelled.
// Port 0 binds an ephemeral port, readable via Addr afterwards.
func (h *Hub) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", h.cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %v", h.cfg.Port)
	}
	h.listener = listener
	h.httpServer = &http.Server{Handler: h.router(), ReadHeaderTimeout: h.cfg.WriteTimeout}
	close(h.started)

	go h.pingLoop()
	go func() {
		<-ctx.Done()
		h.shutdown()
	}()
	log.Printf("hub started listening on %v...", listener.Addr())
	if err = h.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "hub serve failed")
	}

	return nil
}

func (h *Hub) Addr() string {
	<-h.started

	return h.listener.Addr().String()
}

func (h *Hub) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/ws", h.handleWS)
	router.GET("/ws/ranges/:rangeID", h.handleWS)
	api := router.Group("/api/v1", h.requireBearerToken)
	api.GET("/notifications", h.handleListNotifications)
	api.POST("/notifications/read", h.handleMarkRead)
	api.POST("/notifications/read-all", h.handleMarkAllRead)

	return router
}

func (h *Hub) requireBearerToken(ginCtx *gin.Context) {
	authorization := ginCtx.GetHeader("Authorization")
	if h.cfg.Token == "" || authorization == "Bearer "+h.cfg.Token {
		return
	}
	ginCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
}

func (h *Hub) handleWS(ginCtx *gin.Context) {
	if h.cfg.Token != "" && ginCtx.Query("token") != h.cfg.Token {
		ginCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})

		return
	}
	netConn, _, _, err := ws.UpgradeHTTP(ginCtx.Request, ginCtx.Writer)
	if err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "websocket upgrade failed"))

		return
	}
	conn := &hubConn{
		conn:   netConn,
		ranges: make(map[string]struct{}),
		vms:    make(map[string]struct{}),
	}
	if rangeID := ginCtx.Query("range_id"); rangeID != "" {
		conn.ranges[rangeID] = struct{}{}
	}
	if rangeID := ginCtx.Param("rangeID"); rangeID != "" {
		conn.ranges[rangeID] = struct{}{}
	}
	h.connsMx.Lock()
	h.conns[conn] = struct{}{}
	h.connsMx.Unlock()

	if err = h.writeConn(conn, []byte(`{"type":"connected"}`)); err != nil {
		log.Printf("WARN: failed to greet websocket channel: %v", err)
	}
	h.wg.Add(1)
	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *hubConn) {
	defer h.wg.Done()
	defer h.dropConn(conn, false)
	for {
		message, op, err := wsutil.ReadClientData(conn.conn)
		if err != nil {
			return
		}
		if op != ws.OpText || len(message) == 0 {
			continue
		}
		h.handleCommand(conn, message)
	}
}

func (h *Hub) handleCommand(conn *hubConn, message []byte) {
	var command model.Command
	if err := json.Unmarshal(message, &command); err != nil {
		log.Printf("WARN: dropping malformed command %v: %v", string(message), err)

		return
	}
	conn.mx.Lock()
	defer conn.mx.Unlock()
	switch command.Action {
	case model.CommandActionPong:
	case model.CommandActionSubscribe:
		if command.RangeID != "" {
			conn.ranges[command.RangeID] = struct{}{}
		}
	case model.CommandActionUnsubscribe:
		delete(conn.ranges, command.RangeID)
	case model.CommandActionSubscribeVM:
		if command.VMID != "" {
			conn.vms[command.VMID] = struct{}{}
		}
	default:
		log.Printf("WARN: dropping unknown command action `%v`", command.Action)
	}
}

// Broadcast persists notification envelopes into the durable record, then
// fans the frame out to every channel whose scope matches. Per-channel write
// failures do not stop the fan-out.
func (h *Hub) Broadcast(ctx context.Context, frame *model.Frame) error {
	if frame.EventType == model.EventTypeNotification {
		notification := model.NotificationFromEvent(frame.Event(stdlibtime.Now()))
		if err := records.SaveNotification(ctx, notification); err != nil && !errors.Is(err, records.ErrDuplicate) {
			return errors.Wrapf(err, "failed to persist notification %v", notification.ID)
		}
	}
	message, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "failed to marshal frame")
	}

	return h.fanOut(frame, message)
}

func (h *Hub) fanOut(frame *model.Frame, message []byte) error {
	h.connsMx.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.connsMx.Unlock()

	var errs *multierror.Error
	for _, conn := range conns {
		if !conn.matches(frame) {
			continue
		}
		if err := h.writeConn(conn, message); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "failed to fan frame out"))
		}
	}

	return errs.ErrorOrNil()
}

// matches applies the same scope filter the client subscribes with: unscoped
// frames reach everyone, scoped ones only their range or vm subscribers.
func (c *hubConn) matches(frame *model.Frame) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	if frame.RangeID == "" && frame.VMID == "" {
		return true
	}
	if frame.RangeID != "" {
		if _, ok := c.ranges[frame.RangeID]; ok {
			return true
		}
	}
	if frame.VMID != "" {
		if _, ok := c.vms[frame.VMID]; ok {
			return true
		}
	}

	return false
}

func (h *Hub) writeConn(conn *hubConn, message []byte) error {
	conn.writeMx.Lock()
	defer conn.writeMx.Unlock()
	_ = conn.conn.SetWriteDeadline(stdlibtime.Now().Add(h.cfg.WriteTimeout))

	return wsutil.WriteServerMessage(conn.conn, ws.OpText, message)
}

func (h *Hub) pingLoop() {
	ticker := stdlibtime.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.pingDone:
			return
		case <-ticker.C:
			if err := h.Ping(); err != nil {
				log.Printf("WARN: ping fan-out failed: %v", err)
			}
		}
	}
}

// Ping nudges every channel with the application-level keepalive frame.
func (h *Hub) Ping() error {
	return h.fanOut(new(model.Frame), []byte(`{"type":"ping"}`))
}

// DropConnections severs every channel without a close frame, the way a dying
// server or a flaky network would.
func (h *Hub) DropConnections() {
	h.connsMx.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.connsMx.Unlock()
	for _, conn := range conns {
		h.dropConn(conn, false)
	}
}

func (h *Hub) dropConn(conn *hubConn, graceful bool) {
	h.connsMx.Lock()
	if _, tracked := h.conns[conn]; !tracked {
		h.connsMx.Unlock()

		return
	}
	delete(h.conns, conn)
	h.connsMx.Unlock()
	if graceful {
		frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "hub shutdown"))
		conn.writeMx.Lock()
		_ = conn.conn.SetWriteDeadline(stdlibtime.Now().Add(h.cfg.WriteTimeout))
		_ = ws.WriteFrame(conn.conn, frame)
		conn.writeMx.Unlock()
	}
	_ = conn.conn.Close()
}

func (h *Hub) shutdown() {
	close(h.pingDone)
	h.connsMx.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.connsMx.Unlock()
	for _, conn := range conns {
		h.dropConn(conn, true)
	}
	h.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
	defer cancel()
	if err := h.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "hub shutdown failed"))
	} else {
		log.Printf("hub shutdown succeeded")
	}
}

func (h *Hub) handleListNotifications(ginCtx *gin.Context) {
	limit := queryInt64(ginCtx, "limit", 100)
	offset := queryInt64(ginCtx, "offset", 0)
	notifications, err := records.SelectNotifications(ginCtx.Request.Context(), limit, offset)
	if err != nil {
		abortInternal(ginCtx, errors.Wrap(err, "failed to select notifications"))

		return
	}
	unread, err := records.CountUnread(ginCtx.Request.Context())
	if err != nil {
		abortInternal(ginCtx, errors.Wrap(err, "failed to count unread notifications"))

		return
	}
	if notifications == nil {
		notifications = []*model.Notification{}
	}
	ginCtx.JSON(http.StatusOK, gin.H{"notifications": notifications, "unread_count": unread})
}

func (h *Hub) handleMarkRead(ginCtx *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}
	updated, err := records.MarkNotificationsRead(ginCtx.Request.Context(), body.IDs)
	if err != nil {
		abortInternal(ginCtx, errors.Wrap(err, "failed to mark notifications read"))

		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Hub) handleMarkAllRead(ginCtx *gin.Context) {
	updated, err := records.MarkAllNotificationsRead(ginCtx.Request.Context())
	if err != nil {
		abortInternal(ginCtx, errors.Wrap(err, "failed to mark all notifications read"))

		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{"updated": updated})
}

func abortInternal(ginCtx *gin.Context, err error) {
	log.Printf("ERROR:%v", err)
	ginCtx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func queryInt64(ginCtx *gin.Context, key string, fallback int64) int64 {
	raw := strings.TrimSpace(ginCtx.Query(key))
	if raw == "" {
		return fallback
	}
	var value int64
	if _, err := fmt.Sscan(raw, &value); err != nil || value < 0 {
		return fallback
	}

	return value
}
