package audit

import "io"

// StreamDetourClient 接管一个 stream 的 四个读写端, 直到 task 结束.
type StreamDetourClient interface {
	DetourRelay(cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer, ctx *StreamDetourContext) error
}

// Handle 是 审计相关设置 的只读句柄, 被同一 server 的所有 task 共享.
type Handle struct {
	detour StreamDetourClient
}

func NewHandle(detour StreamDetourClient) *Handle {
	return &Handle{detour: detour}
}

// StreamDetourClient 未配置检测设备时返回 nil
func (h *Handle) StreamDetourClient() StreamDetourClient {
	if h == nil {
		return nil
	}
	return h.detour
}
