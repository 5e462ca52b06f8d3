package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"chatrelay/internal/http/userhandler"
	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
)

type httpServer struct {
	listenPort uint16
	staticDir  string
	srv        http.Server
	ln         net.Listener
	store      chatstore.IChatStore
	wsSrv      *ws.WsServer
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, staticDir string, wsSrv *ws.WsServer, store chatstore.IChatStore) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		staticDir:  staticDir,
		wsSrv:      wsSrv,
		store:      store,
		ctx:        ctx,
	}
}

// Routes builds the gin engine served by Start.
func (h *httpServer) Routes() *gin.Engine {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	// Static files for the web UI
	routerEngine.StaticFile("/", filepath.Join(h.staticDir, "index.html"))
	routerEngine.Static("/static", h.staticDir)

	routerEngine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	uh := userhandler.New(h.store, h.wsSrv)
	uh.Register(routerEngine)

	return routerEngine
}

// Start binds the listener and serves until Dispose. It returns nil after a
// graceful shutdown.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http.listen", zap.String("addr", h.ln.Addr().String()))

	h.srv = http.Server{
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := h.srv.Serve(h.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish. Upgraded websocket
// connections are not tracked by net/http and are closed by the ws server.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		zap.L().Error("http_dispose", zap.Error(errors.New("shutdown timed out")))
	}

	return nil
}
