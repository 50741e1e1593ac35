package main

import "time"

type Config struct {
	Store               string        `env:"STORE,default=badger"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH,default=./data/chat"`
	MongoURI            string        `env:"CHAT_MONGODB,default=mongodb://localhost/myapp"`
	MongoDatabase       string        `env:"MONGO_DATABASE"`
	MongoTransactions   bool          `env:"MONGO_TRANSACTIONS,default=false"`
	StoreMaxRetries     int           `env:"STORE_MAX_RETRIES,default=10"`
	SharedSecret        string        `env:"AUTH0_SHARED_SECRET,required=true"`
	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB,default=0"`
	RedisChannel        string        `env:"REDIS_CHANNEL,default=chat-relay:deliveries"`
	BufferSize          int           `env:"BUFFER_SIZE,default=1024"`
	SendBufferSize      int           `env:"SEND_BUFFER_SIZE,default=64"`
	SinkTimeout         time.Duration `env:"SINK_TIMEOUT,default=2s"`
	PingInterval        time.Duration `env:"PING_INTERVAL,default=25s"`
	WriteTimeout        time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	MaxMessageSize      int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	AllowedOrigins      string        `env:"ALLOWED_ORIGINS"`
	HeartbeatInterval   time.Duration `env:"HEARTBEAT_INTERVAL,default=1s"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL,default=1m"`
	SettleWindow        time.Duration `env:"RECONCILE_SETTLE_WINDOW,default=30s"`
	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=5s"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	Host                string        `env:"HOST,default=127.0.0.1"`
	Port                int           `env:"PORT,default=8081"`
}
