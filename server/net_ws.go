package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
)

// Conn 房间看到的连接：非阻塞发送与带关闭码的关闭
type Conn interface {
	// Send 入队一条文本消息；队列已满或已关闭时返回 false
	Send(b []byte) bool
	// Close 发送完已入队的消息后以 code/reason 关闭；可重复调用
	Close(code int, reason string)
}

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	quit chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	code      int
	reason    string
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueue),
		quit: make(chan struct{}),
		code: websocket.CloseNormalClosure,
	}
}

// Send 非阻塞入队，满则丢弃（防止阻塞房间 goroutine）
func (c *ClientConn) Send(b []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *ClientConn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.code, c.reason = code, reason
		c.mu.Unlock()
		close(c.quit)
	})
}

func (c *ClientConn) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.code, c.reason)
}

// writePump 独立协程，负责从 send 队列写出到 WS；关闭时先写完队列再发关闭帧
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.quit:
			for {
				select {
				case msg := <-c.send:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					_ = c.ws.WriteControl(websocket.CloseMessage, c.closeFrame(), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func (c *ClientConn) write(msg []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// readPump 读取客户端帧并原样投递给房间；大小与格式检查由房间完成
func (c *ClientConn) readPump(room *Room, limit int64) {
	defer func() {
		// 读泵退出时，通知房间在自己的 goroutine 中处理断开
		room.Disconnected(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()
	c.ws.SetReadLimit(limit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				Log.Debugw("websocket read failed", "room", room.ID, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		room.Deliver(c, payload)
		select {
		case <-c.quit:
			return
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 允许所有来源；部署时由前置代理限制
		return true
	},
}

// HandleWS 升级连接并接入指定房间
func HandleWS(m *RoomManager, roomID string, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade failed", "err", err)
		return
	}
	room, err := m.GetOrCreateRoom(roomID)
	if err != nil {
		Log.Errorw("open room failed", "room", roomID, "err", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseInternalError, "room unavailable"), time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	client := NewClientConn(ws)
	room.Attach(client)
	// 读上限放宽到两倍，超限帧仍能到达房间并收到 invalid_payload + 1009
	limit := int64(m.Config().Room.MaxClientMessageSize) * 2
	go client.writePump()
	go client.readPump(room, limit)
}
