package security

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxFilenameLength 文件名最大长度（字节）
const MaxFilenameLength = 255

// SanitizeFilename 规范化客户端提交的文件名
//
// 文件名是查找键，会原样写进元数据和 Content-Disposition，
// 这里去掉路径成分和控制字符，超长时截断并保留扩展名。
// 返回空字符串表示文件名完全不可用。
func SanitizeFilename(name string) string {
	// 去掉路径成分，防止 "../../etc/passwd" 式的名字
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}

	// 去掉控制字符
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		name = name[:MaxFilenameLength-len(ext)] + ext
	}

	return name
}
