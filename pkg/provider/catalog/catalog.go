// Package catalog maps configured provider kinds to their adapters. The
// OpenAI-compatible backends differ only in endpoint URL, so they share one
// adapter; Google gets its own.
package catalog

import (
	"fmt"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/provider"
	"github.com/unillm/unillm/pkg/provider/gemini"
	"github.com/unillm/unillm/pkg/provider/openaicompat"
)

// Fixed chat-completions endpoints for the hosted backends.
const (
	AliyunURL      = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	TencentURL     = "https://api.lkeap.cloud.tencent.com/v1/chat/completions"
	BytedanceURL   = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	DeepSeekURL    = "https://api.deepseek.com/chat/completions"
	SiliconflowURL = "https://api.siliconflow.cn/v1/chat/completions"
)

// ForRef returns the adapter for a configured provider reference. Custom
// providers use the URL verbatim from configuration.
func ForRef(ref config.ProviderRef) (provider.Provider, error) {
	switch ref.Kind {
	case config.ProviderAliyun:
		return openaicompat.New("aliyun", AliyunURL), nil
	case config.ProviderTencent:
		return openaicompat.New("tencent", TencentURL), nil
	case config.ProviderBytedance:
		return openaicompat.New("bytedance", BytedanceURL), nil
	case config.ProviderDeepSeek:
		return openaicompat.New("deepseek", DeepSeekURL), nil
	case config.ProviderSiliconflow:
		return openaicompat.New("siliconflow", SiliconflowURL), nil
	case config.ProviderGoogle:
		return gemini.New(), nil
	case config.ProviderCustom:
		if ref.CustomURL == "" {
			return nil, fmt.Errorf("custom provider has no url")
		}
		return openaicompat.New("custom", ref.CustomURL), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", ref.Kind)
	}
}
