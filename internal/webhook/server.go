package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"stock-alerts/internal/alerting"
)

// Replier answers an inbound message.
type Replier interface {
	Handle(ctx context.Context, phone, text string) string
}

// Options configure the HTTP surface.
type Options struct {
	ListenAddr   string
	ReplyTimeout time.Duration
}

// Server exposes the inbound WhatsApp webhook plus health and metrics endpoints.
type Server struct {
	echo    *echo.Echo
	replier Replier
	sender  alerting.Sender
	opts    Options
	logger  zerolog.Logger
}

// inboundMessage mirrors the form Twilio posts for an incoming WhatsApp message.
type inboundMessage struct {
	From       string `form:"From"`
	To         string `form:"To"`
	Body       string `form:"Body"`
	MessageSid string `form:"MessageSid"`
}

// New builds the server. metrics may be nil.
func New(opts Options, replier Replier, sender alerting.Sender, metrics http.Handler, logger zerolog.Logger) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8080"
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 15 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		replier: replier,
		sender:  sender,
		opts:    opts,
		logger:  logger.With().Str("component", "webhook").Logger(),
	}

	e.POST("/whatsapp", s.handleWhatsApp)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("webhook server listening")
	if err := s.echo.Start(s.opts.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleWhatsApp(c echo.Context) error {
	var msg inboundMessage
	if err := c.Bind(&msg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid form"})
	}
	if msg.From == "" || msg.Body == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "From and Body are required"})
	}

	log := s.logger.With().Str("from", msg.From).Str("message_sid", msg.MessageSid).Logger()
	log.Info().Str("to", msg.To).Str("body", msg.Body).Msg("incoming whatsapp message")

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.ReplyTimeout)
	defer cancel()

	reply := s.replier.Handle(ctx, msg.From, msg.Body)
	if _, err := s.sender.Send(ctx, msg.From, msg.To, reply); err != nil {
		log.Error().Err(err).Msg("failed to send reply")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Failed to process message."})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Response sent successfully"})
}
