package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"
	"chat_sync_service/pkg/token"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler 每條連線一個 Engine
type ChatWebsocketHandler struct {
	deps           Deps
	opts           Options
	conversationUC *ConversationUseCase
	validate       *validator.Validate
	pingInterval   time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(deps Deps, opts Options, conversationUC *ConversationUseCase) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		deps:           deps.withDefaults(),
		opts:           opts.withDefaults(),
		conversationUC: conversationUC,
		validate:       validator.New(),
		pingInterval:   time.Minute,
	}
}

// wsSink engine -> client. The engine loop and the read loop both write,
// so every write holds mu.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	userID string
}

func (s *wsSink) write(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.String("userID", s.userID), zap.Error(err))
	}
}

func (s *wsSink) control(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(messageType, data, time.Now().Add(time.Second))
}

func (s *wsSink) ViewModel(vm domain.ViewModel) {
	s.write(domain.WSResponse{
		Action:  string(domain.NotifyViewModel),
		Success: true,
		Payload: map[string]interface{}{"view_model": vm},
	})
}

func (s *wsSink) Conversations(list []domain.ConversationSummary) {
	s.write(domain.WSResponse{
		Action:  string(domain.NotifyConversations),
		Success: true,
		Payload: map[string]interface{}{"conversations": list},
	})
}

func (s *wsSink) SendFailed(f domain.SendFailure) {
	s.write(domain.WSResponse{
		Action:  string(domain.NotifySendFailure),
		Success: false,
		Payload: map[string]interface{}{"failure": f},
		Error:   f.Error.Message,
	})
}

// AuthInvalid token expired: tell the client, then hang up
func (s *wsSink) AuthInvalid() {
	s.write(domain.WSResponse{Action: string(domain.NotifyAuthInvalid), Success: false, Error: "session expired"})
	if err := s.control(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired")); err != nil {
		logger.Log.Warn("close after auth invalid", zap.Error(err))
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	claims, ok := conn.Locals(middlewares.TokenClaims).(*token.Claims)
	if !ok || claims.MemberID == "" {
		logger.Log.Error("websocket without claims")
		conn.Close()
		return
	}
	memberID := claims.MemberID
	log := logger.Log.With(zap.String("userID", memberID))
	log.Info("websocket connected")

	identity := token.NewClaimsIdentity(claims)
	sink := &wsSink{conn: conn, userID: memberID}
	engine := NewEngine(identity, sink, h.deps, h.opts)

	ctxClose, cancel := context.WithCancel(ctx)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		// Shutdown ends the loop after it has torn the session down
		if err := engine.Run(context.Background()); err != nil {
			log.Error("engine stopped", zap.Error(err))
		}
	}()

	h.presence(ctxClose, memberID, h.deps.Ephemeral.SetOnline, "set_online")

	defer func() {
		engine.Shutdown()
		select {
		case <-engineDone:
		case <-time.After(h.opts.RequestTimeout):
			log.Warn("engine shutdown timed out")
		}
		identity.Close()
		cancel()
		h.presence(context.Background(), memberID, h.deps.Ephemeral.SetOffline, "set_offline")
		log.Info("websocket close")
		conn.Close()
	}()

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		log.Debug("received pong", zap.String("data", appData))
		return nil
	})

	// 定期發送 Ping
	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sink.control(websocket.PingMessage, []byte("ping")); err != nil {
					log.Warn("ping error", zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			// 檢查是否為 Close 正常結束
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Info("connection closed", zap.Error(err))
			} else {
				//直接斷線 1006
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			h.sendError(sink, "unsupported message type")
			continue
		}
		h.textMessageAction(ctxClose, sink, engine, memberID, message)
	}
}

// presence best-effort, the lease expires on its own if this fails
func (h *ChatWebsocketHandler) presence(ctx context.Context, uid string, call func(context.Context, string) error, op string) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()
	if err := call(ctx, uid); err != nil {
		logger.Log.Warn("presence update failed",
			zap.String("op", op),
			zap.String("userID", uid),
			zap.String("kind", errprocess.CleanupFailure.String()),
			zap.Error(err),
		)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, sink *wsSink, engine *Engine, memberID string, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.sendError(sink, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.sendError(sink, "invalid request")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	var err error
	switch domain.Action(req.Action) {
	//進入聊天室
	case domain.OpenSession:
		err = engine.OpenSession(ctx, req.ConversationID)
		resp.Payload["conversation_id"] = req.ConversationID

	//離開聊天室
	case domain.CloseSession:
		err = engine.CloseSession(ctx)

	case domain.InputChanged:
		err = engine.OnInputChanged(ctx, req.Text)

	//傳送訊息, 先回 local echo id
	case domain.Send:
		var localID string
		localID, err = engine.Send(ctx, req.Text)
		resp.Payload["local_id"] = localID

	case domain.Focus:
		err = engine.SetFocus(ctx, req.Focused)

	case domain.AppState:
		err = engine.SetAppActive(ctx, req.Active)

	case domain.ListConversations:
		err = engine.WatchConversations(ctx)

	//建立聊天室 (群組 or 1對1)
	case domain.CreateConversation:
		var id string
		id, err = h.conversationUC.CreateConversation(ctx, memberID, req.IsGroup, req.Title, req.MemberIDs)
		resp.Payload["conversation_id"] = id

	default:
		h.sendError(sink, "unknown action")
		return
	}

	if err != nil {
		kind := errprocess.KindOf(err)
		resp.Error = errorView(kind).Message
		resp.Payload["kind"] = kind.String()
		logger.Log.Error("websocket err ", zap.String("MemberID", memberID), zap.String("Action", req.Action), zap.Error(err))
	} else {
		resp.Success = true
	}
	sink.write(resp)
}

func (h *ChatWebsocketHandler) sendError(sink *wsSink, errorMsg string) {
	sink.write(domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}
