// Package relay is the collaboration server the engine connects to. It
// authenticates sockets, tracks who is online and fans frames out between
// connections; the school backend pushes data changes and alerts through
// internal HTTP endpoints.
package relay

import (
	"context"
	"net/http"
	"slices"
	"time"

	"school-collab/auth"
	"school-collab/internal/domain"
	apiError "school-collab/internal/errors"
	"school-collab/internal/protocol"
	"school-collab/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type Options struct {
	Verifier    *auth.Verifier
	RequireAuth bool
	// optional authoritative profiles
	Directory user.Directory

	InternalSecret string
	// empty allows every origin
	AllowedOrigins []string
	AuthTimeout    time.Duration
}

type Server struct {
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, opts Options) *Server {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	s := &Server{
		hub:  hub,
		opts: opts,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// non-browser clients send no origin
	if origin == "" {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

// Register mounts the relay routes
func (s *Server) Register(router gin.IRouter) {
	router.GET("/ws", s.WebSocketConnect)
	router.GET("/healthz", s.Health)
	router.GET("/presence", auth.AuthMiddleWare(s.opts.Verifier), s.ListPresence)

	internal := router.Group("/internal", auth.InternalAuthMiddleware(s.opts.InternalSecret))
	internal.POST("/sync", s.PushDataSync)
	internal.POST("/alerts", s.PushSystemAlert)
	internal.GET("/presence", s.ListMirroredPresence)
}

// WebSocketConnect upgrades the request, waits for the auth frame and then
// serves the connection until it closes
func (s *Server) WebSocketConnect(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Infof("[relay]websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	ws.SetReadDeadline(time.Now().Add(s.opts.AuthTimeout))
	_, message, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return
	}
	authFrame, err := protocol.Decode(message)
	if err == nil && authFrame.Type != protocol.TypeAuth {
		err = apiError.BadRequest("first frame must be auth", nil)
	}
	var profile domain.CollaborationUser
	if err == nil {
		profile, err = s.authenticate(c.Request.Context(), authFrame)
	}
	if err != nil {
		glog.Infof("[relay]reject connection: %s", err)
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(time.Second),
		)
		ws.Close()
		return
	}
	ws.SetReadDeadline(time.Time{})

	client := newClient(s.hub, ws, domain.NewID(), profile)
	s.hub.sendTo(client, protocol.NewAuthSuccess(client.id))
	s.hub.register(client)

	go client.writeLoop()
	client.readLoop()
	s.hub.unregister(client)
}

// authenticate resolves the profile of a connecting user from the token,
// the directory and the claimed profile, in that order of authority
func (s *Server) authenticate(ctx context.Context, ev protocol.RealtimeEvent) (domain.CollaborationUser, error) {
	var profile domain.CollaborationUser
	if ev.User != nil {
		profile = ev.User.Clone()
	}

	if ev.Token != "" {
		identity, err := s.opts.Verifier.VerifyJWT(ev.Token)
		if err != nil {
			return domain.CollaborationUser{}, apiError.Unauthorized("invalid token", err)
		}
		profile.ID = identity.UserID
		if identity.Name != "" {
			profile.Name = identity.Name
		}
		if identity.Email != "" {
			profile.Email = identity.Email
		}
		if identity.Role != "" {
			profile.Role = domain.Role(identity.Role)
		}
	} else if s.opts.RequireAuth {
		return domain.CollaborationUser{}, apiError.Unauthorized("token required", nil)
	}

	if s.opts.Directory != nil && profile.ID != "" {
		found, err := s.opts.Directory.Lookup(ctx, profile.ID)
		switch {
		case err == nil:
			profile = found
		case s.opts.RequireAuth:
			return domain.CollaborationUser{}, apiError.Unauthorized("unknown user", err)
		default:
			glog.V(1).Infof("[relay]directory lookup %s: %s", profile.ID, err)
		}
	}

	profile.Status = domain.StatusOnline
	profile.LastSeen = domain.Now()
	if err := domain.Validate(profile); err != nil {
		return domain.CollaborationUser{}, apiError.BadRequest("invalid profile", err)
	}
	return profile, nil
}
