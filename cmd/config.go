package main

import "time"

type Config struct {
	BufferSize                int           `env:"BUFFER_SIZE,required=true"`
	HistoryLimit              int           `env:"HISTORY_LIMIT,default=50"`
	HistoryTimeout            time.Duration `env:"HISTORY_TIMEOUT,required=true"`
	GracePeriod               time.Duration `env:"GRACE_PERIOD,required=true"`
	SweepInterval             time.Duration `env:"SWEEP_INTERVAL,required=true"`
	IdleThreshold             time.Duration `env:"IDLE_THRESHOLD,required=true"`
	MaxBodyLength             int           `env:"MAX_BODY_LENGTH,default=2000"`
	ReadLimit                 int64         `env:"READ_LIMIT,default=8192"`
	PersistQueueSize          int           `env:"PERSIST_QUEUE_SIZE,required=true"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,required=true"`
	BannedWords               string        `env:"BANNED_WORDS"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH,required=true"`
	TokenSecret               string        `env:"TOKEN_SECRET,required=true"`
	TokenTTL                  time.Duration `env:"TOKEN_TTL,default=24h"`
	AllowedOrigins            string        `env:"ALLOWED_ORIGINS"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
}
