package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword 以 bcrypt 默认强度生成密码哈希。
// 注册接口与 cmd/admin 的管理员引导共用这条路径。
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash 校验明文密码与哈希是否匹配。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
