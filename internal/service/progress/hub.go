package progress

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// Wire message types exchanged with observers
const (
	MessageTypeSubscribe   = "subscribe_campaign"
	MessageTypeUnsubscribe = "unsubscribe_campaign"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeProgress    = "campaign_progress"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	sendBufferSize = 16
)

// subscriptionPayload names the campaign a subscribe or unsubscribe targets
type subscriptionPayload struct {
	CampaignID string `json:"campaign_id"`
}

// inboundMessage is a message received from an observer
type inboundMessage struct {
	Type    string              `json:"type"`
	Payload subscriptionPayload `json:"payload"`
}

// outboundMessage is a message pushed to an observer
type outboundMessage struct {
	Type string                   `json:"type"`
	Data *domain.CampaignProgress `json:"data,omitempty"`
}

// session is one connected observer. It holds only a weak subscription
// reference; subscribing to a campaign that does not exist is legal and
// simply yields no events.
type session struct {
	conn          *websocket.Conn
	send          chan outboundMessage
	subscriptions map[string]struct{}
	lastPingAt    time.Time
	mu            sync.Mutex
	closed        bool
	closeOnce     sync.Once
}

func (s *session) subscribe(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[campaignID] = struct{}{}
}

func (s *session) unsubscribe(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, campaignID)
}

func (s *session) isSubscribed(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[campaignID]
	return ok
}

// enqueue drops the message if the session's buffer is full; a slow observer
// only misses intermediate deltas, the next change re-sends current state.
// Messages arriving after close are dropped too: the readPump may still be
// handling inbound frames while shutdown tears the session down.
func (s *session) enqueue(msg outboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.send)
	})
}

// Hub fans campaign state changes out to all subscribed observer sessions.
// It keeps no history for disconnected observers; a reconnecting client
// resubscribes and receives the then-current snapshot.
type Hub struct {
	campaignRepo  domain.CampaignRepository
	logger        logger.Logger
	rateRemaining func() float64
	upgrader      websocket.Upgrader

	sessions map[*session]struct{}
	mu       sync.RWMutex
}

// NewHub creates a progress hub and subscribes it to the event bus
func NewHub(campaignRepo domain.CampaignRepository, eventBus domain.EventBus, log logger.Logger, rateRemaining func() float64) *Hub {
	if rateRemaining == nil {
		rateRemaining = func() float64 { return 0 }
	}
	h := &Hub{
		campaignRepo:  campaignRepo,
		logger:        log,
		rateRemaining: rateRemaining,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
	eventBus.SubscribeAll(h.handleEvent)
	return h
}

// handleEvent pushes one progress message to every session subscribed to the
// event's campaign. All lifecycle events carry a full projection, so
// observers see terminal states the same way they see progress.
func (h *Hub) handleEvent(ctx context.Context, event domain.EventPayload) {
	if event.Progress == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if s.isSubscribed(event.CampaignID) {
			s.enqueue(outboundMessage{Type: MessageTypeProgress, Data: event.Progress})
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket observer session
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithField("error", err.Error()).Warn("Failed to upgrade websocket connection")
		return
	}

	s := &session{
		conn:          conn,
		send:          make(chan outboundMessage, sendBufferSize),
		subscriptions: make(map[string]struct{}),
		lastPingAt:    time.Now(),
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote_addr", conn.RemoteAddr().String()).Debug("Observer connected")

	// The request context dies when this handler returns, so the pumps run
	// on a background context for the life of the connection
	go h.writePump(s)
	go h.readPump(context.Background(), s)
}

func (h *Hub) readPump(ctx context.Context, s *session) {
	defer h.removeSession(s)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg inboundMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithField("error", err.Error()).Debug("Observer connection dropped")
			}
			return
		}
		// Any inbound traffic counts as liveness
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case MessageTypeSubscribe:
			if msg.Payload.CampaignID == "" {
				continue
			}
			s.subscribe(msg.Payload.CampaignID)
			h.sendSnapshot(ctx, s, msg.Payload.CampaignID)
		case MessageTypeUnsubscribe:
			s.unsubscribe(msg.Payload.CampaignID)
		case MessageTypePing:
			s.mu.Lock()
			s.lastPingAt = time.Now()
			s.mu.Unlock()
			s.enqueue(outboundMessage{Type: MessageTypePong})
		}
	}
}

func (h *Hub) writePump(s *session) {
	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(msg); err != nil {
			// Unblock the paired readPump instead of letting it wait out
			// the read deadline
			s.conn.Close()
			return
		}
	}

	// Channel closed by shutdown or unregister; tell the client this is a
	// clean close so it does not reconnect
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
}

// sendSnapshot delivers the current campaign state to a fresh subscriber so
// it never has to wait for the next change to learn where things stand
func (h *Hub) sendSnapshot(ctx context.Context, s *session, campaignID string) {
	campaign, err := h.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		if !domain.IsNotFound(err) {
			h.logger.WithFields(map[string]interface{}{
				"campaign_id": campaignID,
				"error":       err.Error(),
			}).Warn("Failed to load campaign snapshot for observer")
		}
		return
	}
	s.enqueue(outboundMessage{Type: MessageTypeProgress, Data: campaign.Progress(h.rateRemaining())})
}

func (h *Hub) removeSession(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

// SessionCount reports the number of connected observers
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every observer session with a normal close code so
// well-behaved clients do not attempt to reconnect
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
