package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/a-essam23/go-canvas/internal/engine"
	"github.com/a-essam23/go-canvas/internal/render"
	"github.com/a-essam23/go-canvas/internal/router"
	"github.com/a-essam23/go-canvas/internal/server/middleware"
	"github.com/a-essam23/go-canvas/pkg/archive"
	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/config"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/state/statemanager"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/coder/websocket"
	"github.com/gorilla/mux"
)

const (
	defaultImageWidth  = 1280
	defaultImageHeight = 720
	maxImageSide       = 4096
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	wg           sync.WaitGroup
	http         *http.Server
	handler      http.Handler
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	stateManager := statemanager.NewInMemoryManager(logger)

	registry := engine.New(logger)
	registry.RegisterCore()
	if err := config.CompilePipelines(cfg, registry.GetActionFunc, registry.GetModifierFunc); err != nil {
		return nil, fmt.Errorf("failed to compile event pipelines: %w", err)
	}
	eventRouter := router.NewEventRouter(logger, stateManager, engine.NewBroker(stateManager, logger), cfg.Pipelines)

	app := &App{
		logger:       logger.With(slog.String("component", "server")),
		stateManager: stateManager,
		eventRouter:  eventRouter,
		config:       cfg,
		ctx:          rootCtx,
	}

	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(ip string) {
		oldest, found := stateManager.FindOldestIPConnection(ip)
		if found {
			logger.Info("Cycling connection: closing oldest", "ip", ip, "connID", oldest.ID)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	r := mux.NewRouter()
	r.Use(middleware.MuxMiddlewares(
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(app.logger),
	)...)
	r.Methods(http.MethodGet).Path("/ws").Handler(
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.GetIPConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(app.healthHandler)
	r.Methods(http.MethodGet).Path("/rooms/{room}/export").HandlerFunc(app.exportHandler)
	r.Methods(http.MethodGet).Path("/rooms/{room}/canvas.png").HandlerFunc(app.canvasHandler)
	app.handler = r

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: r, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app, nil
}

// Handler exposes the routes, e.g. for httptest.
func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	go a.runJanitor()

	<-a.ctx.Done()
	return a.Shutdown()
}

// runJanitor evicts empty rooms that have been idle for rooms.idleTTL.
func (a *App) runJanitor() {
	ttl := a.config.Rooms.IdleTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(a.config.Rooms.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			a.stateManager.EvictIdle(ttl, now)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.eventRouter.HandleMessage,
		a.eventRouter.HandleClose,
		a.logger,
	)
	if _, err := a.stateManager.RegisterConnection(conn, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("Connection established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok rooms=%d connections=%d\n", len(a.stateManager.RoomIDs()), len(a.stateManager.GetAllConnections()))
}

// exportHandler serves a room's committed history as an archive document.
func (a *App) exportHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]
	room, ok := a.stateManager.FindRoom(roomID)
	if !ok {
		http.Error(w, state.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := archive.Export(w, roomID, room.Snapshot().History, time.Now()); err != nil {
		a.logger.Error("Failed to write export", slog.String("roomID", roomID), slog.Any("error", err))
	}
}

// canvasHandler renders the committed history in display order.
func (a *App) canvasHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]
	room, ok := a.stateManager.FindRoom(roomID)
	if !ok {
		http.Error(w, state.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	width, err := dimension(r, "width", defaultImageWidth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := dimension(r, "height", defaultImageHeight)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ops := canvas.SortForDisplay(room.Snapshot().History)
	w.Header().Set("Content-Type", "image/png")
	if err := render.New(width, height).RenderPNG(w, ops, nil); err != nil {
		a.logger.Error("Failed to render canvas", slog.String("roomID", roomID), slog.Any("error", err))
	}
}

func dimension(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxImageSide {
		return 0, fmt.Errorf("%s must be between 1 and %d", key, maxImageSide)
	}
	return n, nil
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.GetAllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
