package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/domain"
	redisstate "campus-chat/internal/infra/state/redis"
	"campus-chat/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "heartbeat"
	RoomID  uint    // 房间 ID
	UserID  uint    // 来源用户 ID
	Client  *Client // 关联的客户端
	RawData []byte  // 仅用于 heartbeat (原始 WebSocket 消息)
}

// Hub 维护活跃的 WebSocket 客户端集合，并把房间事件扇出给它们。
// 事件本身来自 Redis Pub/Sub：服务层发布到房间频道，Hub 为每个有
// 在线客户端的房间维护一个订阅。这样多实例部署时各实例都能收到
// 全量事件，只把属于自己客户端的部分推下去。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 客户端集合，按 RoomID 组织
	rooms map[uint]map[*Client]bool
	// 每个有客户端的房间对应一个 Redis 订阅
	subs    map[uint]*redis.PubSub
	roomsMu sync.RWMutex

	redisClient     *redis.Client
	keyPrefix       string
	presenceService *service.PresenceService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(redisClient *redis.Client, keyPrefix string, presenceService *service.PresenceService) *Hub {
	if redisClient == nil {
		panic("Redis client cannot be nil for Hub")
	}
	if presenceService == nil {
		panic("PresenceService cannot be nil for Hub")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &Hub{
		messageChan:     make(chan HubMessage, 512),
		rooms:           make(map[uint]map[*Client]bool),
		subs:            make(map[uint]*redis.PubSub),
		redisClient:     redisClient,
		keyPrefix:       keyPrefix,
		presenceService: presenceService,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "heartbeat":
			// 异步处理心跳，避免阻塞 Hub 主循环
			go h.handleHeartbeat(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s from user %d in room %d", msg.Type, msg.UserID, msg.RoomID)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册逻辑。
// 房间的第一个客户端到达时建立该房间的 Redis 订阅。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
		sub := h.redisClient.Subscribe(context.Background(), redisstate.RoomEventChannel(h.keyPrefix, roomID))
		h.subs[roomID] = sub
		go h.fanOut(roomID, sub)
		logCtx.Info("Subscribed to room event channel")
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销逻辑。
// 房间最后一个客户端离开时取消该房间的 Redis 订阅。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "unregisterClient",
	})

	h.roomsMu.Lock()
	if roomClients, roomExists := h.rooms[roomID]; roomExists {
		if _, clientExists := roomClients[client]; clientExists {
			delete(roomClients, client)
			client.closeSend()

			if len(roomClients) == 0 {
				delete(h.rooms, roomID)
				if sub, ok := h.subs[roomID]; ok {
					delete(h.subs, roomID)
					if err := sub.Close(); err != nil {
						logCtx.WithError(err).Warn("Failed to close room subscription")
					}
				}
				logCtx.Info("Room empty, unsubscribed and removed from Hub")
			}
		} else {
			logCtx.Warn("Client not found in room during unregister")
		}
	} else {
		logCtx.Warn("Room not found during client unregister")
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")
}

// fanOut 把一个房间订阅收到的事件推给该房间的所有本地客户端。
// 订阅被 Close 后 Channel() 返回的通道会关闭，goroutine 随之退出。
func (h *Hub) fanOut(roomID uint, sub *redis.PubSub) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "fanOut"})
	for msg := range sub.Channel() {
		h.broadcast(roomID, []byte(msg.Payload), nil)
	}
	logCtx.Debug("Room event subscription closed, fanOut exiting")
}

// heartbeatFrame 是客户端经 WebSocket 上报心跳的消息格式
type heartbeatFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// handleHeartbeat 处理客户端经 WebSocket 发来的心跳帧
func (h *Hub) handleHeartbeat(msg HubMessage) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   msg.RoomID,
		"user_id":   msg.UserID,
		"operation": "handleHeartbeat",
	})

	var frame heartbeatFrame
	if err := json.Unmarshal(msg.RawData, &frame); err != nil || frame.Type != "heartbeat" {
		logCtx.Debug("Ignoring non-heartbeat client frame")
		return
	}
	status := domain.PresenceStatus(frame.Status)
	if status == "" {
		status = domain.PresenceOnline
	}

	roomID := msg.RoomID
	if _, err := h.presenceService.Heartbeat(context.Background(), msg.UserID, status, &roomID); err != nil {
		logCtx.WithError(err).Warn("Heartbeat via WebSocket failed")
	}
}

// broadcast 将消息发送给指定房间的所有客户端，排除发送者
func (h *Hub) broadcast(roomID uint, message []byte, sender *Client) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != sender {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id":          roomID,
				"receiver_user_id": client.UserID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}
