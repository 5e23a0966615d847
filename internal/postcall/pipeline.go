package postcall

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/call-relay/internal/calllog"
)

// Downloader fetches recording media from the telephony provider.
type Downloader interface {
	DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

// Uploader archives recording media.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Extractor pulls structured booking details out of a transcript.
type Extractor interface {
	ExtractBooking(ctx context.Context, transcript string, referenceDate time.Time) (calllog.Booking, error)
}

// Messenger sends SMS confirmations.
type Messenger interface {
	SendSMS(to, body string) error
}

// Pipeline runs the work that happens after a call ends: archive the
// recording, transcribe it, extract booking details and confirm by
// SMS. Every stage is best effort; a failed stage is logged and the
// rest of the pipeline keeps going with what it has.
type Pipeline struct {
	Store       calllog.Store
	Downloader  Downloader
	Uploader    Uploader
	Transcriber Transcriber
	Extractor   Extractor
	Messenger   Messenger

	// PaymentBaseURL, when set, adds a payment link to confirmation texts.
	PaymentBaseURL string
}

func (p *Pipeline) Process(ctx context.Context, callSID, recordingURL string, duration time.Duration) {
	rec, err := p.Store.Get(callSID)
	if err != nil {
		log.Printf("[%s] postcall: no call record, starting fresh: %v", callSID, err)
		rec = calllog.Record{CallSID: callSID, StartedAt: time.Now().UTC()}
	}
	rec.Status = calllog.StatusCompleted
	rec.DurationSec = int(duration.Seconds())

	var audio []byte
	if recordingURL != "" && p.Downloader != nil {
		audio, err = p.Downloader.DownloadRecording(ctx, recordingURL)
		if err != nil {
			log.Printf("[%s] postcall: download recording: %v", callSID, err)
			audio = nil
		}
	}

	if len(audio) > 0 && p.Uploader != nil {
		key := fmt.Sprintf("%s.mp3", callSID)
		if err := p.Uploader.Upload(key, "audio/mpeg", audio); err != nil {
			log.Printf("[%s] postcall: archive recording: %v", callSID, err)
		} else {
			rec.RecordingURL = key
		}
	}

	if len(audio) > 0 && p.Transcriber != nil {
		text, err := p.Transcriber.Transcribe(ctx, callSID+".mp3", audio)
		if err != nil {
			log.Printf("[%s] postcall: transcribe: %v", callSID, err)
		} else {
			rec.Transcript = text
		}
	}

	if rec.Transcript != "" && p.Extractor != nil {
		booking, err := p.Extractor.ExtractBooking(ctx, rec.Transcript, time.Now())
		if err != nil {
			log.Printf("[%s] postcall: extract booking: %v", callSID, err)
		} else {
			rec.Booking = &booking
		}
	}

	if rec.Booking != nil && rec.Booking.Complete() && p.Messenger != nil {
		to := rec.Booking.PhoneNo
		if to == "" {
			to = rec.From
		}
		if to == "" {
			log.Printf("[%s] postcall: booking complete but no number to confirm to", callSID)
		} else if err := p.Messenger.SendSMS(to, ConfirmationSMS(*rec.Booking, PaymentLink(p.PaymentBaseURL, rec.PaymentID))); err != nil {
			rec.SMSError = err.Error()
			log.Printf("[%s] postcall: send confirmation SMS: %v", callSID, err)
		} else {
			rec.SMSSent = true
		}
	}

	if err := p.Store.Update(rec); err != nil {
		if err := p.Store.Create(rec); err != nil {
			log.Printf("[%s] postcall: persist call record: %v", callSID, err)
		}
	}
}

// ConfirmationSMS renders the booking confirmation text. Also used by the
// manual resend route.
func ConfirmationSMS(b calllog.Booking, paymentLink string) string {
	msg := fmt.Sprintf("Hi %s, your booking for %d guests on %s at %s is confirmed.", b.Name, b.Guests, b.Date, b.Time)
	if b.Allergy != "" {
		msg += fmt.Sprintf(" We noted your allergy: %s.", b.Allergy)
	}
	if paymentLink != "" {
		msg += " Secure your table here: " + paymentLink
	}
	return msg
}

// PaymentLink builds the payment-page URL for a call, or "" when either
// part is missing.
func PaymentLink(baseURL, paymentID string) string {
	if baseURL == "" || paymentID == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/payment/" + paymentID
}
