// Package config loads the environment-variable configuration table
// described in spec §6 via viper, with an optional .env bootstrap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Telephony holds the telephony-provider credentials and dial-out identity.
// Placing a call is an external collaborator (spec §1 Out of scope); this
// struct only carries the values that collaborator would need.
type Telephony struct {
	APIKey       string
	ConnectionID string
	PhoneNumber  string
	PublicWSURL  string
}

// STT holds the speech-to-text service configuration (spec §6, §4.1).
type STT struct {
	APIKey         string
	Model          string
	EndpointingMS  int
	UtteranceEndMS int
}

// TTS holds the text-to-speech service configuration (spec §6, §4.2).
type TTS struct {
	APIKey string
	Model  string
}

// LLM holds the language-model service configuration (spec §6, §4.3).
type LLM struct {
	APIKey      string
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float64
}

// Server holds the HTTP/WebSocket listener configuration.
type Server struct {
	Host string
	Port int
}

// Bootstrap selects the one-shot Completer backend used to generate the
// call-tailored system prompt and opening greeting (spec §4.3 Greeting
// bootstrap). Provider is one of "anthropic", "openai", "google", or ""
// to skip generation and use the built-in defaults.
type Bootstrap struct {
	Provider string
	APIKey   string
	Model    string
}

// Config is the fully resolved application configuration.
type Config struct {
	Telephony Telephony
	STT       STT
	TTS       TTS
	LLM       LLM
	Bootstrap Bootstrap
	Server    Server
	LogLevel  string
	Debug     bool
}

// Load bootstraps an optional .env file (checked in cwd, then the
// executable's directory, mirroring original_source's load_dotenv
// cascade), binds environment variables via viper, applies the spec §6
// defaults, and validates the fields documented as required.
func Load() (Config, error) {
	for _, candidate := range dotenvCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
			break
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("stt_model", "nova-2")
	v.SetDefault("tts_model", "aura-2-thalia-en")
	v.SetDefault("deepgram_endpointing_ms", 300)
	v.SetDefault("deepgram_utterance_end_ms", 1000)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("bedrock_model_id", "us.amazon.nova-pro-v1:0")
	v.SetDefault("bedrock_max_tokens", 50)
	v.SetDefault("bedrock_temperature", 0.7)
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8765)
	v.SetDefault("log_level", "info")
	v.SetDefault("bootstrap_provider", "")

	cfg := Config{
		Telephony: Telephony{
			APIKey:       v.GetString("telephony_api_key"),
			ConnectionID: v.GetString("telephony_connection_id"),
			PhoneNumber:  v.GetString("telephony_phone_number"),
			PublicWSURL:  v.GetString("public_ws_url"),
		},
		STT: STT{
			APIKey:         v.GetString("deepgram_api_key"),
			Model:          v.GetString("stt_model"),
			EndpointingMS:  v.GetInt("deepgram_endpointing_ms"),
			UtteranceEndMS: v.GetInt("deepgram_utterance_end_ms"),
		},
		TTS: TTS{
			APIKey: v.GetString("deepgram_api_key"),
			Model:  v.GetString("tts_model"),
		},
		LLM: LLM{
			APIKey:      v.GetString("aws_api_key"),
			Region:      v.GetString("aws_region"),
			ModelID:     v.GetString("bedrock_model_id"),
			MaxTokens:   v.GetInt("bedrock_max_tokens"),
			Temperature: v.GetFloat64("bedrock_temperature"),
		},
		Bootstrap: Bootstrap{
			Provider: v.GetString("bootstrap_provider"),
			APIKey:   v.GetString("bootstrap_api_key"),
			Model:    v.GetString("bootstrap_model"),
		},
		Server: Server{
			Host: v.GetString("server_host"),
			Port: v.GetInt("server_port"),
		},
		LogLevel: v.GetString("log_level"),
		Debug:    v.GetBool("debug"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Telephony.PublicWSURL == "" {
		missing = append(missing, "PUBLIC_WS_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func dotenvCandidates() []string {
	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	return candidates
}
