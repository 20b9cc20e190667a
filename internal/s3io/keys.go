package s3io

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Key layout under the bucket.
const (
	claimsDir = "claims"
	avatarDir = "avatar"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._\-]+`)

// SafeName reduces a client supplied filename to a key-safe base name.
func SafeName(fn string) string {
	base := path.Base(strings.ReplaceAll(fn, `\`, "/"))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "file"
	}
	return base
}

// ClaimFileKey builds the key of the n-th attachment of a claim.
func ClaimFileKey(userID, claimID string, n int, filename string) string {
	return fmt.Sprintf("user/%s/%s/%s/%d-%s", userID, claimsDir, claimID, n, SafeName(filename))
}

// AvatarKey builds the key of a profile picture upload.
func AvatarKey(userID, uploadID, ext string) string {
	return fmt.Sprintf("user/%s/%s/%s%s", userID, avatarDir, uploadID, strings.ToLower(ext))
}

// ParseAvatarKey extracts the userID from a profile picture key.
func ParseAvatarKey(key string) (userID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "user" || parts[2] != avatarDir || parts[1] == "" || parts[3] == "" {
		return "", false
	}
	return parts[1], true
}

// UploadHeaders builds the headers the client must send on the presigned PUT.
func UploadHeaders(userID, uploadID, contentType string) map[string]string {
	return map[string]string{
		"Content-Type":                 contentType,
		"x-amz-server-side-encryption": "aws:kms",
		"x-amz-meta-user_id":           userID,
		"x-amz-meta-upload_id":         uploadID,
	}
}

// Metadata is the object metadata matching UploadHeaders.
func Metadata(userID, uploadID string) map[string]string {
	return map[string]string{"user_id": userID, "upload_id": uploadID}
}
