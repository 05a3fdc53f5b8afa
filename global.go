package autoflow

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Version is overridden at build time with -ldflags "-X autoflow.Version=...".
var Version = "dev"

var (
	DB     *gorm.DB
	Logger zerolog.Logger
	Redis  *redis.Client
)
