package rbac

// 权限常量：面向核心暴露的特权编程接口（ManualRetry / ForceDigest / ResetBudget / ReplayAuditEvent）。
// 管理端/用户端 HTTP 面不在本仓库范围内，但这些操作本身具有破坏性/越权能力，
// 任何调用方（包括 composition root 自带的 CLI 或 RPC 入口）仍需经过授权检查。
const (
	PermissionManualRetry = "notification:retry"
	PermissionForceDigest = "notification:digest:force"
	PermissionResetBudget = "notification:budget:reset"
	PermissionReadHistory = "notification:history:read"
	PermissionResolveDLQ  = "notification:dlq:resolve"
	PermissionReplayAudit = "notification:audit:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadHistory,
	},
	RoleAdmin: {
		PermissionReadHistory,
		PermissionManualRetry,
		PermissionForceDigest,
		PermissionResetBudget,
		PermissionResolveDLQ,
		PermissionReplayAudit,
	},
}

// HasPermission 检查给定角色是否具备某权限。角色来自已认证的身份（JWT claim），
// 不在此包内查库推导——鉴权仍是核心之外的协作方职责，这里只做策略判定。
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

// ValidateUserIDInPayload 验证 payload 中的 user_id 是否与身份中的 user_id 匹配。
// 用于 ManualRetry/ForceDigest 等接受 userID 参数的调用，防止越权操作他人数据。
func ValidateUserIDInPayload(identityUserID int64, payloadUserID int64) error {
	if payloadUserID != identityUserID {
		return &UserIDMismatchError{
			IdentityUserID: identityUserID,
			PayloadUserID:  payloadUserID,
		}
	}
	return nil
}

// UserIDMismatchError 表示 user_id 不匹配的错误
type UserIDMismatchError struct {
	IdentityUserID int64
	PayloadUserID  int64
}

func (e *UserIDMismatchError) Error() string {
	return "user_id in payload does not match authenticated identity"
}
