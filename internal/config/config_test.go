package config

import (
	"testing"
	"time"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_OBJECT_STORE_ACCESS_KEY", "minio-access")

			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "media_jobs", cfg.Database.Database)
				assert.Equal(t, "media_jobs", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "media_jobs.dlx", cfg.RabbitMQ.DeadLetter)
				assert.Equal(t, "faceswap_jobs", cfg.RabbitMQ.Queues.ForKind(domain.KindFaceSwap).Name)
				assert.Equal(t, "minio-access", cfg.ObjectStore.AccessKey)
				assert.Equal(t, "tpl-xmas", cfg.Vendors.Render.Templates["christmas"])
				assert.Equal(t, "rd-key", cfg.Vendors.Render.APIKey)
				assert.Equal(t, "https://render.example.com", cfg.Vendors.Render.BaseURL)
				assert.Equal(t, 20*time.Second, cfg.Polling.Interval)
				assert.Equal(t, 15*time.Minute, cfg.Polling.Timeout)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultFaceSwapTimeout, cfg.Vendors.FaceSwap.RequestTimeout)
	assert.Equal(t, DefaultVendorTimeout, cfg.Vendors.Avatar.RequestTimeout)
	assert.Equal(t, 2.0, cfg.Vendors.Render.RatePerSecond)
	assert.Equal(t, DefaultVendorRatePerSecond, cfg.Vendors.Avatar.RatePerSecond)
	assert.Equal(t, DefaultSignedURLTTL, cfg.ObjectStore.SignedURLTTL)
	assert.Equal(t, time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, 2*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, 3, cfg.Worker.ConcurrencyFor(domain.KindFaceSwap))
	assert.Equal(t, DefaultConcurrency, cfg.Worker.ConcurrencyFor(domain.KindSlideshowCard))
	assert.Greater(t, cfg.Worker.JobTimeout, 2*cfg.Polling.Timeout)
}

func validWorkerConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "media_jobs"},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "media_jobs"},
			Queues: QueuesConfig{
				FaceSwap:      QueueConfig{Name: "faceswap_jobs"},
				AIVideoCard:   QueueConfig{Name: "ai_video_card_jobs"},
				SlideshowCard: QueueConfig{Name: "slideshow_card_jobs"},
				Notifications: QueueConfig{Name: "notifications"},
			},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "a",
			SecretKey: "s",
			Buckets: BucketsConfig{
				Characters:        "characters",
				Voices:            "voices",
				Music:             "music",
				FaceSwapTemplates: "faceswap-templates",
				UserContent:       "user-content",
			},
		},
		Vendors: VendorsConfig{
			FaceSwap: VendorConfig{BaseURL: "https://fs", APIKey: "k"},
			Avatar:   VendorConfig{BaseURL: "https://av", APIKey: "k"},
			Render:   RenderVendorConfig{VendorConfig: VendorConfig{BaseURL: "https://rd", APIKey: "k"}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
		wantField string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "missing kind queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queues.SlideshowCard.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name for slideshow_card is required",
		},
		{
			name:      "unknown kind",
			mutate:    func(c *Config) { c.Worker.Kinds = []string{"poster"} },
			wantErr:   true,
			errString: "unknown worker kind",
		},
		{
			name:      "missing render api key",
			mutate:    func(c *Config) { c.Vendors.Render.APIKey = "" },
			wantErr:   true,
			wantField: "vendors.render.api_key",
		},
		{
			name: "render key not needed for faceswap only worker",
			mutate: func(c *Config) {
				c.Worker.Kinds = []string{"faceswap"}
				c.Vendors.Render.APIKey = ""
			},
			wantErr: false,
		},
		{
			name:      "missing redis",
			mutate:    func(c *Config) { c.Redis.Addr = "" },
			wantErr:   true,
			wantField: "redis.addr",
		},
		{
			name:      "poll interval longer than timeout",
			mutate:    func(c *Config) { c.Polling.Interval = time.Hour },
			wantErr:   true,
			errString: "polling interval must be shorter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			if tt.errString != "" {
				assert.Contains(t, err.Error(), tt.errString)
			}
			if tt.wantField != "" {
				var cfgErr *domain.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})

	t.Run("load and validate valid config", func(t *testing.T) {
		t.Setenv("TEST_OBJECT_STORE_ACCESS_KEY", "minio-access")

		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
