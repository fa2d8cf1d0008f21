package kis

import (
	"fmt"
	"strings"
)

const accountDelimiter = "-"

// AccountIdentity 为拆分后的综合账号：CANO 前 8 位与 ACNT_PRDT_CD 商品代码。
type AccountIdentity struct {
	Prefix string
	Suffix string
}

// ParseAccount 按 "前缀-后缀" 拆分配置中的账号。
func ParseAccount(number string) (AccountIdentity, error) {
	parts := strings.Split(strings.TrimSpace(number), accountDelimiter)
	if len(parts) != 2 {
		return AccountIdentity{}, fmt.Errorf("kis: 账号 %q 必须为 \"前缀-后缀\" 格式", number)
	}

	prefix := strings.TrimSpace(parts[0])
	suffix := strings.TrimSpace(parts[1])
	if prefix == "" || suffix == "" {
		return AccountIdentity{}, fmt.Errorf("kis: 账号 %q 的前缀或后缀为空", number)
	}

	return AccountIdentity{Prefix: prefix, Suffix: suffix}, nil
}

func (a AccountIdentity) String() string {
	return a.Prefix + accountDelimiter + a.Suffix
}
