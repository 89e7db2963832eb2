package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-pokerplan/internal/session"
	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
	"github.com/npezzotti/go-pokerplan/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

type ClientMessage struct {
	Id          int           `json:"id,omitempty"`
	Subscribe   *SubscribeReq `json:"subscribe,omitempty"`
	Unsubscribe *SubscribeReq `json:"unsubscribe,omitempty"`
}

type SubscribeReq struct {
	Kind   string `json:"kind"`
	RoomId string `json:"room_id,omitempty"`
}

type ServerMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Response  *Response `json:"response,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Error     *WsError  `json:"error,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// Snapshot carries the full matching set for one subscription, never a
// diff.
type Snapshot struct {
	Kind         string              `json:"kind"`
	RoomId       string              `json:"room_id,omitempty"`
	Rooms        []types.Room        `json:"rooms,omitempty"`
	Room         *types.Room         `json:"room,omitempty"`
	Participants []types.Participant `json:"participants,omitempty"`
}

// WsError reports a streaming fault on a subscription that remains
// subscribed.
type WsError struct {
	Kind    string `json:"kind"`
	RoomId  string `json:"room_id,omitempty"`
	Message string `json:"message"`
}

type wsClient struct {
	app      *App
	conn     *websocket.Conn
	identity types.Identity
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once

	subsLock sync.Mutex
	subs     map[string]*session.Subscription
	// last stream error reported per subscription, so sticky errors are
	// surfaced once per change instead of per snapshot
	reported map[string]string
}

func (a *App) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(a.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	client := &wsClient{
		app:      a,
		conn:     conn,
		identity: identity,
		send:     make(chan *ServerMessage, 256),
		stop:     make(chan struct{}),
		subs:     make(map[string]*session.Subscription),
		reported: make(map[string]string),
	}

	a.stats.Incr(stats.ActiveConnections)
	go client.write()
	go client.read()
}

func (c *wsClient) read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.app.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.app.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.app.log.Println("error parsing message:", err)
			c.queueMessage(errInvalidMessage(msg.Id))
			continue
		}

		switch {
		case msg.Subscribe != nil:
			c.handleSubscribe(&msg)
		case msg.Unsubscribe != nil:
			c.handleUnsubscribe(&msg)
		default:
			c.queueMessage(errInvalidMessage(msg.Id))
		}
	}
}

func (c *wsClient) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.app.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.app.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *wsClient) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.app.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *wsClient) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.app.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func subKey(req *SubscribeReq) string {
	return req.Kind + "/" + req.RoomId
}

func (c *wsClient) handleSubscribe(msg *ClientMessage) {
	req := msg.Subscribe
	key := subKey(req)

	c.subsLock.Lock()
	if _, ok := c.subs[key]; ok {
		c.subsLock.Unlock()
		c.queueMessage(okResponse(msg.Id))
		return
	}
	c.subsLock.Unlock()

	var sub *session.Subscription
	var err error
	// the subscription outlives the upgrade request
	ctx := WithIdentity(context.Background(), c.identity)

	switch store.QueryKind(req.Kind) {
	case store.QueryRooms:
		sub, err = c.app.hub.SubscribeRooms(ctx, func(rooms []types.Room) {
			c.deliver(key, req, &Snapshot{Kind: req.Kind, Rooms: rooms})
		})
	case store.QueryRoom:
		sub, err = c.app.hub.SubscribeRoom(ctx, req.RoomId, func(room *types.Room) {
			c.deliver(key, req, &Snapshot{Kind: req.Kind, RoomId: req.RoomId, Room: room})
		})
	case store.QueryParticipants:
		sub, err = c.app.hub.SubscribeParticipants(ctx, req.RoomId, func(participants []types.Participant) {
			c.deliver(key, req, &Snapshot{Kind: req.Kind, RoomId: req.RoomId, Participants: participants})
		})
	default:
		c.queueMessage(errInvalidMessage(msg.Id))
		return
	}

	if err != nil {
		apiErr := fromError(err)
		c.queueMessage(&ServerMessage{
			Id:        msg.Id,
			Timestamp: now(),
			Response: &Response{
				ResponseCode: apiErr.StatusCode,
				Error:        apiErr.Message,
			},
		})
		return
	}

	c.subsLock.Lock()
	c.subs[key] = sub
	c.subsLock.Unlock()

	c.queueMessage(okResponse(msg.Id))
}

func (c *wsClient) handleUnsubscribe(msg *ClientMessage) {
	key := subKey(msg.Unsubscribe)

	c.subsLock.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
		delete(c.reported, key)
	}
	c.subsLock.Unlock()

	if !ok {
		c.queueMessage(errNotSubscribed(msg.Id))
		return
	}

	sub.Cancel()
	c.queueMessage(okResponse(msg.Id))
}

// deliver forwards a snapshot and surfaces the subscription's sticky
// error slot whenever its content changes.
func (c *wsClient) deliver(key string, req *SubscribeReq, snapshot *Snapshot) {
	c.queueMessage(&ServerMessage{
		Timestamp: now(),
		Snapshot:  snapshot,
	})

	c.subsLock.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.subsLock.Unlock()
		return
	}

	var errMsg string
	if err := sub.Err(); err != nil {
		errMsg = fromError(err).Message
	}
	changed := c.reported[key] != errMsg
	c.reported[key] = errMsg
	c.subsLock.Unlock()

	if changed && errMsg != "" {
		c.queueMessage(&ServerMessage{
			Timestamp: now(),
			Error: &WsError{
				Kind:    req.Kind,
				RoomId:  req.RoomId,
				Message: errMsg,
			},
		})
	}
}

func (c *wsClient) cleanup() {
	c.subsLock.Lock()
	subs := make([]*session.Subscription, 0, len(c.subs))
	for key, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, key)
	}
	c.subsLock.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}

	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.app.stats.Decr(stats.ActiveConnections)
}

func okResponse(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: now(),
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func errInvalidMessage(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: now(),
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}
}

func errNotSubscribed(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: now(),
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "not subscribed",
		},
	}
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
