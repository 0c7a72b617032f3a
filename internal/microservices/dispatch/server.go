package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"coffee-shop-system/internal/auth"
	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades console connections and runs their read loops.
type Server struct {
	hub    *Hub
	tokens *auth.Manager
	lg     *logger.Logger
}

func NewServer(hub *Hub, tokens *auth.Manager, lg *logger.Logger) *Server {
	return &Server{hub: hub, tokens: tokens, lg: lg}
}

// ServeWS authenticates the device token before upgrading. The token decides
// which branch this connection is ever allowed to join.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.Error("websocket_upgrade_failed", err, nil)
		return
	}

	c := &client{conn: conn, deviceID: claims.DeviceID, branchID: claims.BranchID}
	s.lg.Info("console_connected", map[string]any{"device_id": c.deviceID, "branch_id": c.branchID})
	go s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.hub.leave(c)
		_ = c.conn.Close()
		s.lg.Info("console_disconnected", map[string]any{"device_id": c.deviceID})
	}()

	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case domain.EventJoinBranch:
			s.handleJoin(c, env.Data)
		case domain.EventLeaveBranch:
			s.hub.leave(c)
		default:
			_ = s.sendError(c, "unknown event "+env.Event)
		}
	}
}

// handleJoin admits the connection to the requested audience only when the
// request matches the branch baked into its token. The ack always goes out,
// success or not, so the console's join handshake never hangs.
func (s *Server) handleJoin(c *client, data json.RawMessage) {
	var req domain.JoinRequest
	ok := json.Unmarshal(data, &req) == nil && req.BranchID == c.branchID
	if ok {
		s.hub.join(c, req.BranchID)
	} else {
		s.lg.Warn("join_rejected", map[string]any{"device_id": c.deviceID, "requested": req.BranchID, "allowed": c.branchID})
	}

	ack, err := domain.NewEnvelope(domain.EventJoinAck, domain.JoinAck{BranchID: req.BranchID, Success: ok})
	if err != nil {
		return
	}
	if err := c.send(ack); err != nil {
		s.hub.leave(c)
		_ = c.conn.Close()
	}
}

func (s *Server) sendError(c *client, msg string) error {
	env, err := domain.NewEnvelope(domain.EventConnectionError, domain.ConnectionError{Message: msg})
	if err != nil {
		return err
	}
	return c.send(env)
}
