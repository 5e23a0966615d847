package twilio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	lookupsApi "github.com/twilio/twilio-go/rest/lookups/v2"
	"github.com/twilio/twilio-go/twiml"
)

type Config struct {
	AccountSID string
	AuthToken  string
	SMSFrom    string
}

// Service wraps the Twilio REST API operations the relay needs:
// recording control, recording download and SMS confirmations.
type Service struct {
	config     Config
	client     *twilio.RestClient
	httpClient *http.Client
}

func New(config Config) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &Service{
		config:     config,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// IncomingCallTwiML builds the voice response that bridges the caller
// into the media stream endpoint. The caller number rides along as a
// custom parameter so the stream handler can resolve a persona for it.
func IncomingCallTwiML(streamURL, caller string) (string, error) {
	say := &twiml.VoiceSay{Message: "Please wait while we connect your call."}
	stream := &twiml.VoiceStream{Url: streamURL}
	if caller != "" {
		stream.InnerElements = []twiml.Element{
			&twiml.VoiceParameter{Name: "caller", Value: caller},
		}
	}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	return twiml.Voice([]twiml.Element{say, connect})
}

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: configured base URL > X-Forwarded-* headers > request Host
// heuristic.
func BuildAbsoluteURL(c echo.Context, baseURL, path string) string {
	if baseURL == "" {
		proto := c.Request().Header.Get("X-Forwarded-Proto")
		host := c.Request().Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" {
		host := c.Request().Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// StartCallRecording creates a dual-channel recording on an in-progress
// call. Twilio posts to callbackURL when the recording completes.
func (s *Service) StartCallRecording(callSID, callbackURL string) error {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to start recording")
	}
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(callbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("dual")

	if _, err := s.client.Api.CreateCallRecording(callSID, params); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	return nil
}

// DownloadRecording fetches the media for a completed recording.
// Twilio serves the audio at the recording resource URL plus an
// extension suffix.
func (s *Service) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to download recording")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", recordingURL+".mp3", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyPreview, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download recording, status %d: %s", resp.StatusCode, string(bodyPreview))
	}
	return io.ReadAll(resp.Body)
}

// PhoneLookup is the subset of Twilio Lookup v2 data the verify route
// reports.
type PhoneLookup struct {
	Valid          bool   `json:"valid"`
	PhoneNumber    string `json:"phoneNumber"`
	NationalFormat string `json:"nationalFormat"`
	Carrier        string `json:"carrier"`
	Type           string `json:"type"`
}

// LookupPhone validates a phone number through the Lookup v2 API with line
// type intelligence.
func (s *Service) LookupPhone(number string) (PhoneLookup, error) {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return PhoneLookup{}, fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to look up numbers")
	}
	params := &lookupsApi.FetchPhoneNumberParams{}
	params.SetFields("line_type_intelligence")

	res, err := s.client.LookupsV2.FetchPhoneNumber(number, params)
	if err != nil {
		return PhoneLookup{}, fmt.Errorf("lookup %s: %w", number, err)
	}

	out := PhoneLookup{Carrier: "Unknown", Type: "Unknown"}
	if res.Valid != nil {
		out.Valid = *res.Valid
	}
	if res.PhoneNumber != nil {
		out.PhoneNumber = *res.PhoneNumber
	}
	if res.NationalFormat != nil {
		out.NationalFormat = *res.NationalFormat
	}
	if res.LineTypeIntelligence != nil {
		if lti, ok := (*res.LineTypeIntelligence).(map[string]interface{}); ok {
			if v, ok := lti["carrier_name"].(string); ok && v != "" {
				out.Carrier = v
			}
			if v, ok := lti["type"].(string); ok && v != "" {
				out.Type = v
			}
		}
	}
	return out, nil
}

// SendSMS sends a text message from the configured number.
func (s *Service) SendSMS(to, body string) error {
	if s.config.SMSFrom == "" {
		return fmt.Errorf("missing SMS_FROM_NUMBER: cannot send SMS")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.config.SMSFrom)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	return nil
}
