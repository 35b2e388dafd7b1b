package httpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/libdo96/Prism-AI-Assistant/internal/assistant"
	"github.com/libdo96/Prism-AI-Assistant/internal/tts"
	"github.com/libdo96/Prism-AI-Assistant/internal/voice"
)

// Server exposes the assistant over HTTP for the desktop UI: turn submission,
// interruption, voice selection, listen toggling, and a WebSocket event feed.
type Server struct {
	echo      *echo.Echo
	orch      *assistant.Orchestrator
	listener  *voice.Listener
	hub       *Hub
	ttsEngine string
	log       zerolog.Logger
}

// New builds the server. listener may be nil when voice input is disabled;
// the listen endpoint then reports the capability as unavailable.
func New(orch *assistant.Orchestrator, listener *voice.Listener, hub *Hub, ttsEngine string, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		orch:      orch,
		listener:  listener,
		hub:       hub,
		ttsEngine: ttsEngine,
		log:       log.With().Str("component", "http").Logger(),
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/api/turn", s.handleTurn)
	e.POST("/api/interrupt", s.handleInterrupt)
	e.GET("/api/history", s.handleHistory)
	e.GET("/api/voices", s.handleVoices)
	e.PUT("/api/voice", s.handleSetVoice)
	e.POST("/api/listen", s.handleListen)
	e.GET("/ws/events", s.handleEvents)

	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr and blocks until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http server listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type turnRequest struct {
	Text     string `json:"text"`
	ImageB64 string `json:"image_b64,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTurn(c echo.Context) error {
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	var image []byte
	if req.ImageB64 != "" {
		var err error
		image, err = base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "image_b64 is not valid base64"})
		}
	}

	reply, err := s.orch.HandleTurn(c.Request().Context(), assistant.TurnInput{
		Text:   req.Text,
		Image:  image,
		Source: assistant.SourceText,
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "turn needs text or an image"})
	case errors.Is(err, assistant.ErrTurnInFlight):
		return c.JSON(http.StatusConflict, errorResponse{Error: "a turn is already being processed"})
	case err != nil:
		s.log.Error().Err(err).Msg("turn failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleInterrupt(c echo.Context) error {
	s.orch.Interrupt()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.History().Recent(0))
}

type voicesResponse struct {
	Engine   string   `json:"engine"`
	Selected string   `json:"selected"`
	Voices   []string `json:"voices"`
}

func (s *Server) handleVoices(c echo.Context) error {
	return c.JSON(http.StatusOK, voicesResponse{
		Engine:   s.ttsEngine,
		Selected: s.orch.Voice(),
		Voices:   tts.Voices[s.ttsEngine],
	})
}

type setVoiceRequest struct {
	Voice string `json:"voice"`
}

func (s *Server) handleSetVoice(c echo.Context) error {
	var req setVoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	req.Voice = strings.TrimSpace(req.Voice)
	if !tts.ValidVoice(s.ttsEngine, req.Voice) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown voice for engine " + s.ttsEngine})
	}
	s.orch.SetVoice(req.Voice)
	return c.JSON(http.StatusOK, map[string]string{"voice": req.Voice})
}

type listenRequest struct {
	Enabled bool `json:"enabled"`
	// Continuous keeps listening across utterances; when false a single
	// utterance is captured and listening stops by itself.
	Continuous bool `json:"continuous"`
}

func (s *Server) handleListen(c echo.Context) error {
	if s.listener == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "voice input is not configured"})
	}
	var req listenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	s.listener.SetMode(req.Enabled, req.Continuous)
	return c.JSON(http.StatusOK, map[string]bool{"enabled": req.Enabled, "continuous": req.Continuous})
}

func (s *Server) handleEvents(c echo.Context) error {
	return s.hub.Serve(c.Response(), c.Request())
}
