// Package contenthash 内容哈希，用作去重键
package contenthash

import (
	"encoding/hex"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// Size 哈希字节数（BLAKE2b-256）
const Size = 32

// Of 对去掉首尾空白的文本计算 BLAKE2b-256，返回十六进制串
func Of(text string) string {
	h, _ := blake2b.New(Size, nil)
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
