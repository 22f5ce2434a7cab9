package s3

import (
	"net/http"
	"strings"
)

// SecureMIMETypesExtension 定義了允許上傳的安全圖片類型及其對應的副檔名
var SecureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
}

// CheckSecureImageAndGetExtension 檢查給定的 MIME 類型是否為允許的圖片類型，並返回對應的副檔名
func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	ext, ok := SecureMIMETypesExtension[mimeType]
	return ok, ext
}

// DetectImage 依內容判斷 MIME 類型，不信任用戶端提供的 Content-Type
func DetectImage(content []byte) (mimeType, ext string, ok bool) {
	mimeType, _, _ = strings.Cut(http.DetectContentType(content), ";")
	ok, ext = CheckSecureImageAndGetExtension(mimeType)
	return mimeType, ext, ok
}
