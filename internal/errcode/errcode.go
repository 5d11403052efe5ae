package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如重复关闭、替补不足但流程可继续）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                 = 0
	ValidationRejected = 4000
	ResourceMissing    = 4004
	AlreadyDone        = 4009
	PartialFulfilled   = 4206
	CascadeBusy        = 4290
	SystemError        = 5000
	ModelConfigError   = 5001
)
