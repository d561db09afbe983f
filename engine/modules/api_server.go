package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/Luismorlan/campusfeed/engine"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/pkg/errors"
)

type ApiServerConfig struct {
	Name string
	Addr string
	// Time given to in-flight requests when shutting down.
	ShutdownTimeout time.Duration
}

// ApiServer serves the rest and websocket routes until shut down.
type ApiServer struct {
	engine.Module

	Config ApiServerConfig
	server *http.Server
}

func NewApiServer(config ApiServerConfig, handler http.Handler) *ApiServer {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &ApiServer{
		Config: config,
		server: &http.Server{Addr: config.Addr, Handler: handler},
	}
}

func (s *ApiServer) RunModule(ctx context.Context) error {
	Logger.Log.Infof("api server listening on %s", s.Config.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ApiServer) Name() string {
	return s.Config.Name
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Websockets are hijacked and end with their subscriptions instead.
func (s *ApiServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		Logger.Log.Errorf("api server shutdown: %s", err)
	}
}
