package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	BaseURL     string

	OpenAIAPIKey string
	Greeting     string
	PersonasPath string

	TwilioAccountSID string
	TwilioAuthToken  string
	SMSFromNumber    string

	// PaymentBaseURL is the public frontend origin; confirmation texts
	// link to <PaymentBaseURL>/payment/<paymentID> when set.
	PaymentBaseURL string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - agent sessions will not connect")
	}

	greeting := os.Getenv("AGENT_GREETING")
	if greeting == "" {
		greeting = "Say your greeting."
	}

	personasPath := os.Getenv("PERSONAS_PATH")
	if personasPath == "" {
		personasPath = "personas.json"
	}

	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioSID == "" || twilioToken == "" {
		log.Println("Warning: Twilio credentials not set - recording, SMS and signature validation disabled")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: Supabase not configured - call records kept in memory only")
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "voice-recordings"
	}

	log.Printf("config: HTTP_ADDRESS=%s PERSONAS_PATH=%s", addr, personasPath)
	return Config{
		HTTPAddress:            addr,
		BaseURL:                os.Getenv("BASE_URL"),
		OpenAIAPIKey:           openAIKey,
		Greeting:               greeting,
		PersonasPath:           personasPath,
		TwilioAccountSID:       twilioSID,
		TwilioAuthToken:        twilioToken,
		SMSFromNumber:          os.Getenv("SMS_FROM_NUMBER"),
		PaymentBaseURL:         os.Getenv("PAYMENT_BASE_URL"),
		SupabaseURL:            supabaseURL,
		SupabaseServiceRoleKey: supabaseKey,
		SupabaseBucket:         bucket,
	}
}
