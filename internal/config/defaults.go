package config

const (
	defaultDraftDir            = "~/.local/share/vidmill/drafts"
	defaultOutputDir           = "~/.local/share/vidmill/output"
	defaultLogDir              = "~/.local/share/vidmill/logs"
	defaultCozeBaseURL         = "https://api.coze.cn"
	defaultCozeRequestTimeout  = 30
	defaultCozeRatePerSecond   = 8
	defaultBitableBaseURL      = "https://open.feishu.cn"
	defaultBitableStatusField  = "status"
	defaultBitableErrorField   = "error"
	defaultRequestTimeout      = 15
	defaultKeywordsBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultKeywordsModel       = "google/gemini-3-flash-preview"
	defaultKeywordsTimeout     = 60
	defaultMaxSubmitConcurrent = 16
	defaultMaxSynthesisWorkers = 4
	defaultPollCheckers        = 8
	defaultPollInterval        = 30
	defaultMaxRetries          = 3
	defaultMaxPollFailures     = 10
	defaultSubmitRetryDelay    = 2
	defaultNtfyRequestTimeout  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DraftDir:  defaultDraftDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Coze: Coze{
			BaseURL:        defaultCozeBaseURL,
			RequestTimeout: defaultCozeRequestTimeout,
			RatePerSecond:  defaultCozeRatePerSecond,
		},
		Bitable: Bitable{
			BaseURL:        defaultBitableBaseURL,
			StatusField:    defaultBitableStatusField,
			ErrorField:     defaultBitableErrorField,
			RequestTimeout: defaultRequestTimeout,
		},
		ASR: ASR{
			RequestTimeout: defaultRequestTimeout,
		},
		Keywords: Keywords{
			BaseURL:        defaultKeywordsBaseURL,
			Model:          defaultKeywordsModel,
			TimeoutSeconds: defaultKeywordsTimeout,
		},
		Orchestrator: Orchestrator{
			MaxSubmitConcurrent: defaultMaxSubmitConcurrent,
			MaxSynthesisWorkers: defaultMaxSynthesisWorkers,
			PollCheckers:        defaultPollCheckers,
			PollInterval:        defaultPollInterval,
			MaxRetries:          defaultMaxRetries,
			MaxPollFailures:     defaultMaxPollFailures,
			SubmitRetryDelay:    defaultSubmitRetryDelay,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
