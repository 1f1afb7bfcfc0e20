package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// apiServer is the HTTP ops surface: health, membership snapshots, and
// relay counters. It runs on its own port, separate from the control
// and media planes.
type apiServer struct {
	reg   *registry.Registry
	relay *Relay
	log   zerolog.Logger
	echo  *echo.Echo
}

func newAPIServer(reg *registry.Registry, relay *Relay, log zerolog.Logger) *apiServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	alog := log.With().Str("component", "api").Logger()
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			alog.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &apiServer{reg: reg, relay: relay, log: alog, echo: e}
	e.GET("/health", s.handleHealth)
	e.GET("/api/users", s.handleUsers)
	e.GET("/api/rooms", s.handleRooms)
	e.GET("/api/stats", s.handleStats)
	return s
}

// run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *apiServer) run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server failed")
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.log.Warn().Err(err).Msg("api shutdown")
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
	Rooms  int    `json:"rooms"`
}

func (s *apiServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Users:  s.reg.UserCount(),
		Rooms:  s.reg.RoomCount(),
	})
}

// UsersResponse is the payload for GET /api/users.
type UsersResponse struct {
	Users []string `json:"users"`
}

func (s *apiServer) handleUsers(c echo.Context) error {
	users := s.reg.ListUsers()
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, UsersResponse{Users: users})
}

func (s *apiServer) handleRooms(c echo.Context) error {
	rooms := s.reg.RoomInfos()
	if rooms == nil {
		rooms = []registry.RoomInfo{}
	}
	return c.JSON(http.StatusOK, rooms)
}

// StatsResponse is the payload for GET /api/stats. Counters reset on
// each scrape.
type StatsResponse struct {
	DatagramsIn  uint64 `json:"datagrams_in"`
	BytesIn      uint64 `json:"bytes_in"`
	DatagramsOut uint64 `json:"datagrams_out"`
}

func (s *apiServer) handleStats(c echo.Context) error {
	datagrams, bytes, sent := s.relay.Stats()
	return c.JSON(http.StatusOK, StatsResponse{
		DatagramsIn:  datagrams,
		BytesIn:      bytes,
		DatagramsOut: sent,
	})
}
