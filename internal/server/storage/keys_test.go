package storage

import (
	"path"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		filename   string
		parentPath string
		want       string
	}{
		{"root level", "u1", "a.txt", "", "u1/a.txt"},
		{"nested", "u1", "a.txt", "Docs", "u1/Docs/a.txt"},
		{"deep path", "u1", "report.pdf", "Docs/2026/Q1", "u1/Docs/2026/Q1/report.pdf"},
		{"strips unsafe chars", "u1", "we#ird?na/me.txt", "Docs", "u1/Docs/weirdname.txt"},
		{"keeps spaces dots dashes", "u1", "my file-v2.final.txt", "", "u1/my file-v2.final.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveKey(tt.owner, tt.filename, tt.parentPath))
		})
	}
}

func TestUniqueVariant(t *testing.T) {
	got := UniqueVariant("a.txt")

	assert.Regexp(t, regexp.MustCompile(`^a-[0-9a-f]{8}\.txt$`), got)
	assert.Equal(t, ".txt", path.Ext(got))
}

func TestUniqueVariant_NoExtension(t *testing.T) {
	got := UniqueVariant("README")

	assert.Regexp(t, regexp.MustCompile(`^README-[0-9a-f]{8}$`), got)
}

func TestUniqueVariant_MultipleDots(t *testing.T) {
	got := UniqueVariant("archive.tar.gz")

	assert.True(t, strings.HasPrefix(got, "archive.tar-"))
	assert.True(t, strings.HasSuffix(got, ".gz"))
}

func TestUniqueVariant_Distinct(t *testing.T) {
	a := UniqueVariant("a.txt")
	b := UniqueVariant("a.txt")

	assert.NotEqual(t, a, b)
}
