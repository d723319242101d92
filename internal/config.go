package internal

import "time"

type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	SessionDuration   time.Duration `env:"SESSION_DURATION,default=24h"`
	LockStrategy      string        `env:"LOCK_STRATEGY,default=global"`
	MaxUpdateAttempts int           `env:"MAX_UPDATE_ATTEMPTS,default=5"`
	EnableDebugServer bool          `env:"ENABLE_DEBUG_SERVER,default=false"`
	DebugPort         int           `env:"DEBUG_PORT,default=6060"`
}
