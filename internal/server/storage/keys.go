package storage

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
)

// unsafeKeyChars matches everything outside the storage-key allow-list.
var unsafeKeyChars = regexp.MustCompile(`[^\w\-. ]`)

// DeriveKey builds the object-storage key for a file from its owner and
// logical location: "owner/parentPath/filename", with the parent path
// omitted when the file sits at root level. The owner id is always the
// leading segment, regardless of who uploads the bytes. Deterministic,
// no side effects.
func DeriveKey(owner string, filename string, parentPath string) string {
	sanitized := unsafeKeyChars.ReplaceAllString(filename, "")
	if parentPath == "" {
		return owner + "/" + sanitized
	}
	return owner + "/" + parentPath + "/" + sanitized
}

// UniqueVariant appends a short random suffix before the extension, e.g.
// "a.txt" -> "a-1f2e3d4c.txt". Used when a display-name collision is
// detected at creation time, so concurrent uploads with the same name do
// not surface a hard conflict to the caller.
func UniqueVariant(filename string) string {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	buf := make([]byte, 4)
	rand.Read(buf)

	return base + "-" + hex.EncodeToString(buf) + ext
}
