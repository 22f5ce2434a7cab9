package api

import "time"

type ServerConfig struct {
	Auth      AuthConfig
	S3        S3Config
	DB        DBConfig
	Redis     RedisConfig
	Lock      LockConfig
	Lifecycle LifecycleConfig
}

type AuthConfig struct {
	// PublicKeyFile 是驗證 access token 用的 Ed25519 公鑰 (PEM)
	PublicKeyFile string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
	UsePathStyle    bool
	// RateLimitPerHour 是每位使用者每小時可上傳的圖片數量，0 表示不限制
	RateLimitPerHour int64
}

// Enabled 判斷是否設定了圖片上傳
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
	// AutoMigrate 啟動時依模型建立資料表，正式環境建議改用 atlas 產生的遷移
	AutoMigrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix   string
	SnapshotTTL time.Duration
	StreamKeys  RedisStreamKeys
}

// Enabled 判斷是否使用 Redis，未設定時以單節點模式執行
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type RedisStreamKeys struct {
	Events string
}

type LockConfig struct {
	// Wait 是取得拍賣鎖的等待上限
	Wait       time.Duration
	Expiry     time.Duration
	RetryDelay time.Duration
}

type LifecycleConfig struct {
	SweepInterval  time.Duration
	SweepBatchSize int
}
