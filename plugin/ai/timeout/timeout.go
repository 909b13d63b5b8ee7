// Package timeout defines centralized timeout constants for AI operations.
// Package timeout 定义 AI 操作的集中式超时常量。
package timeout

import "time"

// AI operation timeout constants.
// AI 操作超时常量。
const (
	// GenerationTimeout is the hard limit for one persona response.
	// GenerationTimeout 是单次角色回复的硬超时。
	GenerationTimeout = 10 * time.Second

	// EmbeddingTimeout is the timeout for one query embedding on the chat path.
	// EmbeddingTimeout 是聊天路径上单次查询向量化的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// SyncRunTimeout bounds one scheduled sync run, retries included.
	// SyncRunTimeout 是单次定时同步（含重试）的超时时间。
	SyncRunTimeout = 15 * time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on shutdown.
	// ShutdownTimeout 是关闭时等待进行中请求的宽限期。
	ShutdownTimeout = 10 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
