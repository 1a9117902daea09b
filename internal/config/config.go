package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	PublicHost  string
	Greeting    string

	OpenAIKey     string
	ResolverModel string
	WhisperModel  string

	AWSRegion   string
	PollyVoice  string
	PollyEngine string

	TwilioAccountSID string
	TwilioAuthToken  string
	RecordCalls      bool

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	PartnerBaseURL string
	PartnerStoreID string
	PartnerToken   string

	// turn-taking tunables
	ActivityThreshold float64
	StartFrames       int
	EndFrames         int
	MinUtteranceMS    int
	MaxUtteranceMS    int
	BargeCooldownMS   int
	CatchUpFrames     int
	ResolverTimeoutMS int
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	publicHost := os.Getenv("PUBLIC_HOST")
	if publicHost == "" {
		log.Println("Warning: PUBLIC_HOST not set - the media stream URL in TwiML will be wrong outside local testing")
		publicHost = "localhost:8080"
	}

	greeting := os.Getenv("GREETING_TEXT")
	if greeting == "" {
		greeting = "Hi! Welcome to Demo Bites. What would you like to order today?"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - transcription and intent resolution will not work")
	}
	resolverModel := os.Getenv("RESOLVER_MODEL_ID")
	if resolverModel == "" {
		resolverModel = "gpt-4o-mini"
	}
	whisperModel := os.Getenv("WHISPER_MODEL_ID")
	if whisperModel == "" {
		whisperModel = "whisper-1"
	}

	awsRegion := os.Getenv("AWS_REGION")
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}
	pollyVoice := os.Getenv("POLLY_VOICE_ID")
	if pollyVoice == "" {
		pollyVoice = "Danielle"
	}
	pollyEngine := os.Getenv("POLLY_ENGINE")
	if pollyEngine == "" {
		pollyEngine = "neural"
	}

	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signature validation will reject all requests")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - order archival disabled")
	}
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "orders"
	}

	partnerBase := os.Getenv("PARTNER_API_BASE_URL")
	partnerStore := os.Getenv("PARTNER_STORE_ID")
	if partnerBase == "" || partnerStore == "" {
		log.Println("Warning: PARTNER_API_BASE_URL/PARTNER_STORE_ID not set - orders will not be submitted downstream")
	}

	log.Printf("config: HTTP_ADDRESS=%s PUBLIC_HOST=%s", addr, publicHost)
	return Config{
		HTTPAddress: addr,
		PublicHost:  publicHost,
		Greeting:    greeting,

		OpenAIKey:     openAIKey,
		ResolverModel: resolverModel,
		WhisperModel:  whisperModel,

		AWSRegion:   awsRegion,
		PollyVoice:  pollyVoice,
		PollyEngine: pollyEngine,

		TwilioAccountSID: twilioSID,
		TwilioAuthToken:  twilioToken,
		RecordCalls:      envBool("RECORD_CALLS", false),

		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		SupabaseBucket:     supabaseBucket,

		PartnerBaseURL: partnerBase,
		PartnerStoreID: partnerStore,
		PartnerToken:   os.Getenv("PARTNER_API_TOKEN"),

		ActivityThreshold: envFloat("ACTIVITY_THRESHOLD", 0.10),
		StartFrames:       envInt("VAD_START_FRAMES", 3),
		EndFrames:         envInt("VAD_END_FRAMES", 6),
		MinUtteranceMS:    envInt("MIN_UTTERANCE_MS", 300),
		MaxUtteranceMS:    envInt("MAX_UTTERANCE_MS", 6000),
		BargeCooldownMS:   envInt("BARGE_COOLDOWN_MS", 250),
		CatchUpFrames:     envInt("CATCH_UP_FRAMES", 2),
		ResolverTimeoutMS: envInt("RESOLVER_TIMEOUT_MS", 5000),
	}
}

// BargeCooldown returns the barge-in debounce window as a duration.
func (c Config) BargeCooldown() time.Duration {
	return time.Duration(c.BargeCooldownMS) * time.Millisecond
}

func (c Config) MinUtterance() time.Duration {
	return time.Duration(c.MinUtteranceMS) * time.Millisecond
}

func (c Config) MaxUtterance() time.Duration {
	return time.Duration(c.MaxUtteranceMS) * time.Millisecond
}

func (c Config) ResolverTimeout() time.Duration {
	return time.Duration(c.ResolverTimeoutMS) * time.Millisecond
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %g", key, v, def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean, using %t", key, v, def)
		return def
	}
	return b
}
