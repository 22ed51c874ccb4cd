// Package ws 通过 WebSocket 推送变更后的持仓与组合快照
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

const (
	writeWait      = 10 * time.Second
	clientQueueLen = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// snapshotMessage 推送消息体
type snapshotMessage struct {
	Positions []*application.PositionDTO `json:"positions"`
	Portfolio *application.PortfolioDTO  `json:"portfolio"`
}

// Hub 管理 WebSocket 连接，把引擎发布的快照扇出到所有连接。
// 发送队列满的慢连接直接断开，绝不反压引擎。
type Hub struct {
	engine *application.Engine

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub 创建 Hub 并订阅引擎快照
func NewHub(engine *application.Engine) *Hub {
	h := &Hub{
		engine:  engine,
		clients: make(map[*client]struct{}),
	}
	engine.Subscribe(h.broadcast)
	return h
}

// Handle gin 路由入口，升级连接并开始推送
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, clientQueueLen)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	// 新连接先收到当前快照，不必等下一次变更
	if data, err := h.snapshot(); err == nil {
		select {
		case cl.send <- data:
		default:
		}
	}

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

// broadcast 引擎每个变更周期回调一次
func (h *Hub) broadcast(positions []*domain.Position, portfolio domain.Portfolio) {
	data, err := json.Marshal(snapshotMessage{
		Positions: application.NewPositionDTOs(positions),
		Portfolio: application.NewPortfolioDTO(portfolio),
	})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal ws snapshot", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			// 消费不过来的连接直接踢掉
			delete(h.clients, cl)
			close(cl.send)
			logging.Warn(context.Background(), "dropping slow websocket client")
		}
	}
}

func (h *Hub) snapshot() ([]byte, error) {
	return json.Marshal(snapshotMessage{
		Positions: application.NewPositionDTOs(h.engine.GetPositions()),
		Portfolio: application.NewPortfolioDTO(h.engine.GetPortfolio()),
	})
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for data := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(cl)
			return
		}
	}
	// send 已被 broadcast 关闭
	_ = cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client too slow"),
		time.Now().Add(writeWait))
}

func (h *Hub) readLoop(cl *client) {
	// 只为响应关闭帧和探测连接断开，丢弃入站数据
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.remove(cl)
			return
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
