package realtime

import "autoflow"

type Config struct {
	Mode         string
	NatsURL      string
	TenantID     string
	JWTSecret    string
	RealtimePort string
}

func LoadConfig() Config {
	return Config{
		Mode:         autoflow.GetEnv("RUN_MODE", "development"),
		NatsURL:      autoflow.GetEnv("NATS_URL", "nats://localhost:4222"),
		TenantID:     autoflow.GetEnv("TENANT_ID", "default"),
		JWTSecret:    autoflow.GetEnv("JWT_SECRET", ""),
		RealtimePort: autoflow.GetEnv("REALTIME_PORT", ":8081"),
	}
}
