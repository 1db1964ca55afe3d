package config

const (
	defaultBind                   = "0.0.0.0:8000"
	defaultMaxUploadBytes         = 600 << 20
	defaultMaxClipSeconds         = 60
	defaultWorkers                = 2
	defaultUploadTTLSeconds       = 3600
	defaultMinSize                = 64
	defaultMaxSize                = 1080
	defaultTTLSeconds             = 60
	defaultJanitorIntervalSeconds = 60
	defaultFFmpegPath             = "ffmpeg"
	defaultFFprobePath            = "ffprobe"
	defaultEncoder                = "round"
	defaultSize                   = 640
	defaultAudioBitrateKbps       = 128
	defaultMaxMB                  = 100
	defaultDeliveryMaxMB          = 8
	defaultTelegramAPIBase        = "https://api.telegram.org"
	defaultDeliveryTimeout        = 120
	defaultFailureDays            = 7
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults. Directory
// defaults honour the same environment variables as the path helpers.
func Default() Config {
	return Config{
		Server: Server{
			Bind: defaultBind,
		},
		Paths: Paths{
			DataDir:  GetDataDir(),
			WorkDir:  GetWorkDir(),
			ServeDir: GetDirectServeBaseDir(),
		},
		Limits: Limits{
			MaxUploadBytes:   defaultMaxUploadBytes,
			MaxClipSeconds:   defaultMaxClipSeconds,
			Workers:          defaultWorkers,
			UploadTTLSeconds: defaultUploadTTLSeconds,
			MinSize:          defaultMinSize,
			MaxSize:          defaultMaxSize,
		},
		Artifacts: Artifacts{
			TTLSeconds:             defaultTTLSeconds,
			JanitorIntervalSeconds: defaultJanitorIntervalSeconds,
		},
		Encoding: Encoding{
			FFmpegPath:       defaultFFmpegPath,
			FFprobePath:      defaultFFprobePath,
			DefaultEncoder:   defaultEncoder,
			DefaultSize:      defaultSize,
			AudioBitrateKbps: defaultAudioBitrateKbps,
			MaxMB:            defaultMaxMB,
			DeliveryMaxMB:    defaultDeliveryMaxMB,
		},
		Delivery: Delivery{
			TelegramAPIBase: defaultTelegramAPIBase,
			TimeoutSeconds:  defaultDeliveryTimeout,
		},
		Retention: Retention{
			FailureDays: defaultFailureDays,
		},
		Logging: Logging{
			Level:   defaultLogLevel,
			Console: true,
		},
	}
}
