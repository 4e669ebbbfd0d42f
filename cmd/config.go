package main

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	BufferSize        int           `env:"BUFFER_SIZE,default=256"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=64"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=5s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	CensoredWords     string        `env:"CENSORED_WORDS"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
}

func (c Config) characterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf("CHARACTER_REPLACEMENT must be a single character, got %q", c.CharReplacement)
	}
	return r[0], nil
}

func (c Config) censoredWordList() []string {
	if strings.TrimSpace(c.CensoredWords) == "" {
		return nil
	}
	var words []string
	for _, word := range strings.Split(c.CensoredWords, ",") {
		if trimmed := strings.TrimSpace(word); trimmed != "" {
			words = append(words, trimmed)
		}
	}
	return words
}

func (c Config) origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}
