package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overlays environment variables onto cfg. Variable names follow
// the serverless worker contract (MODEL_ID, HF_TOKEN, ...). Unset or
// unparsable values leave the current field untouched.
func ApplyEnv(cfg *Config) {
	envStr("INFERD_ADDR", &cfg.Addr)
	envStr("MODEL_ID", &cfg.ModelID)
	envStr("MODEL_PATH", &cfg.ModelPath)
	envStr("HF_TOKEN", &cfg.HFToken)
	envStr("HF_HOME", &cfg.CacheDir)
	envStr("DEVICE_MAP", &cfg.DeviceMap)
	envStr("DTYPE", &cfg.DType)
	envBool("LOAD_IN_8BIT", &cfg.LoadIn8Bit)
	envBool("LOAD_IN_4BIT", &cfg.LoadIn4Bit)
	envInt("CONTEXT_SIZE", &cfg.ContextSize)
	envInt("THREADS", &cfg.Threads)
	envBool("MODEL_WARMUP", &cfg.Warmup)
	envStr("WARMUP_PROMPT", &cfg.WarmupPrompt)
	envInt("DEFAULT_MAX_NEW_TOKENS", &cfg.MaxNewTokens)
	envFloat("DEFAULT_TEMPERATURE", &cfg.Temperature)
	envFloat("DEFAULT_TOP_P", &cfg.TopP)
	envInt("DEFAULT_TOP_K", &cfg.TopK)
	envFloat("DEFAULT_REPETITION_PENALTY", &cfg.RepetitionPenalty)
	envBool("DEFAULT_DO_SAMPLE", &cfg.DoSample)
	envInt("MAX_INPUT_TOKENS", &cfg.MaxInputTokens)
	envInt("MAX_TOTAL_TOKENS", &cfg.MaxTotalTokens)
	envSeconds("INFERENCE_TIMEOUT", &cfg.InferenceTimeout)
	envInt("MAX_QUEUE_DEPTH", &cfg.MaxQueueDepth)
	envSeconds("MAX_QUEUE_WAIT", &cfg.MaxQueueWait)
	envBool("QUEUE_BEFORE_READY", &cfg.QueueBeforeReady)
	envInt("MAX_RELOAD_ATTEMPTS", &cfg.MaxReloadAttempts)
	envStr("LOG_LEVEL", &cfg.LogLevel)
	envStr("LOG_FORMAT", &cfg.LogFormat)
	envBool("LOG_REQUESTS", &cfg.LogRequests)
	envBool("LOG_METRICS", &cfg.LogMetrics)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// envSeconds reads an integer number of seconds into a duration.
func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}
