package errs

// 通用错误码
const (
	ServerInternalError = 500
	ArgsError           = 1001
	ConfigError         = 1002
	UnavailableError    = 1003

	// 网关错误码
	AuthenticationError = 1101 // 握手鉴权失败，连接被拒绝
	DecodeError         = 1201 // 总线消息无法解码，丢弃该消息
	LookupError         = 1301 // 粉丝列表查询失败，放弃整条 newPost
	DeliveryError       = 1401 // 单连接写入失败，仅跳过该连接
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrConfig         = NewCodeError(ConfigError, "ConfigError")
	ErrUnavailable    = NewCodeError(UnavailableError, "UnavailableError")

	ErrAuthentication = NewCodeError(AuthenticationError, "AuthenticationError")
	ErrDecode         = NewCodeError(DecodeError, "DecodeError")
	ErrLookup         = NewCodeError(LookupError, "LookupError")
	ErrDelivery       = NewCodeError(DeliveryError, "DeliveryError")
)
