package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	S3        S3Config        `mapstructure:"s3"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Token     TokenConfig     `mapstructure:"token"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Transform TransformConfig `mapstructure:"transform"`
	Media     MediaConfig     `mapstructure:"media"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	BaseURL string `mapstructure:"base_url"` // Used to build share links
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// StorageConfig selects and configures the file storage backend.
// Driver is "local" or "s3".
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalPath string `mapstructure:"local_path"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// AuthConfig configures verification of caller bearer tokens. Token issuance
// is owned by an external identity service; this server only verifies.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TokenConfig configures the capability-token service used for share links.
type TokenConfig struct {
	Secret     string        `mapstructure:"secret"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxAge     time.Duration `mapstructure:"max_age"` // Hard cap on token age at verification time
}

// UploadConfig configures chunked-upload staging and reclamation.
type UploadConfig struct {
	StagingDir    string        `mapstructure:"staging_dir"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`    // Inactivity window before a session is abandoned
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // How often the reaper runs
}

// TransformConfig configures the transform worker pool and the merge
// normalization targets.
type TransformConfig struct {
	Workers         int           `mapstructure:"workers"`
	MaxRetries      int           `mapstructure:"max_retries"`      // Retries for transient transform failures
	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"` // Running task with no heartbeat beyond this is failed
	Retention       time.Duration `mapstructure:"retention"`        // How long terminal tasks stay queryable
	TargetHeight    int           `mapstructure:"target_height"`    // Merge normalization: output height in pixels
	TargetFPS       int           `mapstructure:"target_fps"`       // Merge normalization: output frame rate
	WorkDir         string        `mapstructure:"work_dir"`         // Scratch space for transform inputs/outputs
}

// MediaConfig configures validation limits for direct uploads and the
// external ffmpeg/ffprobe binaries.
type MediaConfig struct {
	MaxSizeBytes int64   `mapstructure:"max_size_bytes"`
	MinDuration  float64 `mapstructure:"min_duration"` // Seconds
	MaxDuration  float64 `mapstructure:"max_duration"` // Seconds
	FFmpegPath   string  `mapstructure:"ffmpeg_path"`
	FFprobePath  string  `mapstructure:"ffprobe_path"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment variable handling: nested keys map to underscored env vars,
	// e.g. token.default_ttl -> TOKEN_DEFAULT_TTL.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	// Defaults. Durations use duration-string format so viper can unmarshal
	// them directly into time.Duration fields.
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "videoverse")
	viper.SetDefault("storage.driver", "local")
	viper.SetDefault("storage.local_path", "data/assets")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("token.default_ttl", "60s") // Matches the share endpoint's documented default
	viper.SetDefault("token.max_age", "1h")
	viper.SetDefault("upload.staging_dir", "data/staging")
	viper.SetDefault("upload.session_ttl", "24h")
	viper.SetDefault("upload.sweep_interval", "10m")
	viper.SetDefault("transform.workers", 4)
	viper.SetDefault("transform.max_retries", 2)
	viper.SetDefault("transform.liveness_timeout", "10m")
	viper.SetDefault("transform.retention", "1h")
	viper.SetDefault("transform.target_height", 720)
	viper.SetDefault("transform.target_fps", 30)
	viper.SetDefault("transform.work_dir", "data/work")
	viper.SetDefault("media.max_size_bytes", 5*1024*1024)
	viper.SetDefault("media.min_duration", 5)
	viper.SetDefault("media.max_duration", 25)
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.ffprobe_path", "ffprobe")

	err = viper.ReadInConfig()
	// Missing config file is fine; env vars and defaults still apply.
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
