package httpserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/call-relay/internal/calllog"
	"github.com/chadiek/call-relay/internal/config"
	"github.com/chadiek/call-relay/internal/persona"
	"github.com/chadiek/call-relay/internal/postcall"
	"github.com/chadiek/call-relay/internal/relay"
	"github.com/chadiek/call-relay/internal/telephony"
	"github.com/chadiek/call-relay/internal/twilio"
)

// PersonaSource serves persona snapshots and accepts live updates.
type PersonaSource interface {
	GetCurrent() persona.Snapshot
	Update(id string, update persona.Persona) error
}

// Recorder starts call recordings.
type Recorder interface {
	StartCallRecording(callSID, callbackURL string) error
}

// PostcallRunner processes a finished call's recording.
type PostcallRunner interface {
	Process(ctx context.Context, callSID, recordingURL string, duration time.Duration)
}

// Messenger sends SMS texts; backs the manual resend route.
type Messenger interface {
	SendSMS(to, body string) error
}

// PhoneVerifier validates phone numbers for the verify route.
type PhoneVerifier interface {
	LookupPhone(number string) (twilio.PhoneLookup, error)
}

// Deps are the collaborators the HTTP layer wires together.
type Deps struct {
	Config    config.Config
	Personas  PersonaSource
	Calls     calllog.Store
	Recorder  Recorder
	Postcall  PostcallRunner
	Messenger Messenger
	Verifier  PhoneVerifier
	DialAgent relay.AgentDialer
	OnCallEnd func(relay.EndReport)
}

// Server bundles the Echo router and dependencies.
type Server struct {
	Router http.Handler

	deps     Deps
	upgrader websocket.Upgrader
	nextCall atomic.Uint64
}

// New constructs the HTTP server with routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Twilio does not send an Origin header
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	e := NewEcho()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/media-stream", s.mediaStream)
	e.POST("/update-config", s.updateConfig)

	// Frontend-facing API, mirrors the public surface the payment page and
	// admin tools call.
	e.POST("/api/sms/send", s.smsSend)
	e.GET("/api/sms/status/:callSid", s.smsStatus)
	e.GET("/api/payment/:paymentId", s.paymentLookup)
	e.POST("/api/verify/phone", s.verifyPhone)

	webhooks := []echo.MiddlewareFunc{}
	if deps.Config.TwilioAuthToken != "" {
		token := deps.Config.TwilioAuthToken
		webhooks = append(webhooks, twilio.SignatureMiddleware(deps.Config.BaseURL, func() string { return token }))
	} else {
		webhooks = append(webhooks, formParams)
	}
	e.POST("/incoming-call", s.incomingCall, webhooks...)
	e.POST("/recording-complete", s.recordingComplete, webhooks...)

	s.Router = e
	return s
}

// formParams parses webhook form bodies without signature validation.
// Used only when no Twilio auth token is configured.
func formParams(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		values, err := c.FormParams()
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to parse form data")
		}
		params := make(map[string]string)
		for key, vals := range values {
			if len(vals) > 0 {
				params[key] = vals[0]
			}
		}
		c.Set("twilioParams", params)
		return next(c)
	}
}

func (s *Server) incomingCall(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	callSID := params["CallSid"]
	from := params["From"]
	to := params["To"]
	log.Printf("[%s] incoming call from %s to %s", callSID, from, to)

	if s.deps.Calls != nil && callSID != "" {
		err := s.deps.Calls.Create(calllog.Record{
			CallSID:   callSID,
			PaymentID: uuid.NewString(),
			From:      from,
			To:        to,
			Status:    calllog.StatusActive,
			StartedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[%s] create call record: %v", callSID, err)
		}
	}

	if s.deps.Recorder != nil && callSID != "" {
		callback := twilio.BuildAbsoluteURL(c, s.deps.Config.BaseURL, "/recording-complete")
		go func() {
			if err := s.deps.Recorder.StartCallRecording(callSID, callback); err != nil {
				log.Printf("[%s] start call recording: %v", callSID, err)
			}
		}()
	}

	streamURL := wsURL(twilio.BuildAbsoluteURL(c, s.deps.Config.BaseURL, "/media-stream"))
	response, err := twilio.IncomingCallTwiML(streamURL, from)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

func (s *Server) mediaStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response
		return nil
	}

	callID := fmt.Sprintf("call-%d", s.nextCall.Add(1))
	log.Printf("[%s] media stream connected", callID)

	adapter := telephony.NewAdapter(callID, conn)
	resolve := func(caller string) persona.Persona {
		return persona.Resolve(caller, s.deps.Personas.GetCurrent())
	}
	sess := relay.NewSession(callID, adapter, s.deps.DialAgent, resolve, s.deps.OnCallEnd)
	sess.Run(c.Request().Context())
	return nil
}

func (s *Server) recordingComplete(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	callSID := params["CallSid"]
	recordingURL := params["RecordingUrl"]
	durationSec, _ := strconv.Atoi(params["RecordingDuration"])
	log.Printf("[%s] recording complete: %s (%ds)", callSID, recordingURL, durationSec)

	if s.deps.Postcall != nil && callSID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			s.deps.Postcall.Process(ctx, callSID, recordingURL, time.Duration(durationSec)*time.Second)
		}()
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) updateConfig(c echo.Context) error {
	var update persona.Persona
	if err := c.Bind(&update); err != nil {
		return c.String(http.StatusBadRequest, "invalid persona update")
	}
	if s.deps.Personas == nil {
		return c.String(http.StatusServiceUnavailable, "persona updates not available")
	}
	if err := s.deps.Personas.Update(update.ID, update); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

type smsSendRequest struct {
	CallSID string `json:"callSid"`
}

// smsSend re-sends the booking confirmation for a finished call.
func (s *Server) smsSend(c echo.Context) error {
	var req smsSendRequest
	if err := c.Bind(&req); err != nil || req.CallSID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "missing callSid in request body"})
	}
	if s.deps.Messenger == nil || s.deps.Calls == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "sms not available"})
	}

	rec, err := s.deps.Calls.Get(req.CallSID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	}
	if rec.Booking == nil || !rec.Booking.Complete() {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "incomplete booking data - cannot send SMS",
			"booking": rec.Booking,
		})
	}

	link := postcall.PaymentLink(s.deps.Config.PaymentBaseURL, rec.PaymentID)
	if err := s.deps.Messenger.SendSMS(rec.Booking.PhoneNo, postcall.ConfirmationSMS(*rec.Booking, link)); err != nil {
		rec.SMSSent = false
		rec.SMSError = err.Error()
	} else {
		rec.SMSSent = true
		rec.SMSError = ""
	}
	if uerr := s.deps.Calls.Update(rec); uerr != nil {
		log.Printf("[%s] update sms state: %v", rec.CallSID, uerr)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   rec.SMSSent,
		"callSid":   rec.CallSID,
		"paymentId": rec.PaymentID,
		"error":     rec.SMSError,
	})
}

// smsStatus reports whether a call's confirmation text went out.
func (s *Server) smsStatus(c echo.Context) error {
	callSID := c.Param("callSid")
	if s.deps.Calls == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "call records not available"})
	}
	rec, err := s.deps.Calls.Get(callSID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"callSid":   rec.CallSID,
		"paymentId": rec.PaymentID,
		"smsSent":   rec.SMSSent,
		"smsError":  rec.SMSError,
		"booking":   rec.Booking,
	})
}

// paymentLookup serves booking details to the payment page by payment token.
func (s *Server) paymentLookup(c echo.Context) error {
	paymentID := c.Param("paymentId")
	if s.deps.Calls == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "call records not available"})
	}
	rec, err := s.deps.Calls.GetByPaymentID(paymentID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "booking not found"})
	}
	if rec.Booking == nil || rec.Booking.Name == "" {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "incomplete booking data"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"paymentId": rec.PaymentID,
		"callSid":   rec.CallSID,
		"booking":   rec.Booking,
		"callDetails": map[string]interface{}{
			"startTime": rec.StartedAt,
			"duration":  rec.DurationSec,
			"status":    rec.Status,
		},
		"sms": map[string]interface{}{
			"sent": rec.SMSSent,
		},
	})
}

type verifyPhoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// verifyPhone validates a number through Twilio Lookup before the frontend
// accepts it.
func (s *Server) verifyPhone(c echo.Context) error {
	var req verifyPhoneRequest
	if err := c.Bind(&req); err != nil || req.PhoneNumber == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "phoneNumber is required"})
	}
	if s.deps.Verifier == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "verification not available"})
	}
	result, err := s.deps.Verifier.LookupPhone(req.PhoneNumber)
	if err != nil {
		log.Printf("phone verification failed for %s: %v", req.PhoneNumber, err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "valid": false, "error": "invalid phone number"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"valid":          result.Valid,
		"phoneNumber":    result.PhoneNumber,
		"nationalFormat": result.NationalFormat,
		"carrier":        result.Carrier,
		"type":           result.Type,
	})
}

// wsURL rewrites an http(s) callback URL into its ws(s) equivalent.
func wsURL(httpURL string) string {
	if strings.HasPrefix(httpURL, "https://") {
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	}
	if strings.HasPrefix(httpURL, "http://") {
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}
