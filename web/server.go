package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"matchcenter/bus"
	"matchcenter/config"
	"matchcenter/logger"
	"matchcenter/services"
)

type Server struct {
	config     *config.Config
	store      services.Store
	hub        *Hub
	bus        bus.EventBus
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, store services.Store, hub *Hub, eventBus bus.EventBus) *Server {
	return &Server{
		config: cfg,
		store:  store,
		hub:    hub,
		bus:    eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// router 组装全部 HTTP 路由
func (s *Server) router() http.Handler {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/matches", s.handleGetMatches).Methods("GET")
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{id}/events/stream", s.handleMatchEventStream).Methods("GET")

	// WebSocket路由
	router.HandleFunc("/realtime", s.handleWebSocket)

	// CORS配置，未配置白名单时放行所有来源
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.router(),
		// SSE 是长连接，不能设置 WriteTimeout
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(s.hub, conn)
	s.hub.register <- client

	go client.writePump()
	go client.refreshLoop()
	go client.readPump()
}
