package security

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"普通文件名原样保留", "report.pdf", "report.pdf"},
		{"unix 路径只留基础名", "../../etc/passwd", "passwd"},
		{"windows 路径只留基础名", `C:\Users\alice\secret.docx`, "secret.docx"},
		{"控制字符被去掉", "bad\x00name\n.txt", "badname.txt"},
		{"首尾空白被去掉", "  photo.jpg  ", "photo.jpg"},
		{"点号目录不可用", ".", ""},
		{"上级目录不可用", "..", ""},
		{"纯空白不可用", "   ", ""},
		{"空字符串不可用", "", ""},
		{"隐藏文件允许", ".env", ".env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_Truncation(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"

	got := SanitizeFilename(long)
	assert.Len(t, got, MaxFilenameLength)
	// 截断后扩展名保留
	assert.Equal(t, ".txt", filepath.Ext(got))
}
