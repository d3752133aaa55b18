// Package i18n renders user-facing notices in the configured locale.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	BlobFailed    = "upload.blob_failed"
	UploadOK      = "upload.succeeded"
	UploadFailed  = "upload.failed"
	DuplicatePath = "upload.duplicate_path"
)

var (
	english = language.English
	chinese = language.MustParse("zh-CN")

	cat     = catalog.NewBuilder(catalog.Fallback(english))
	matcher = language.NewMatcher([]language.Tag{english, chinese})
)

func init() {
	set := func(tag language.Tag, key, msg string) {
		if err := cat.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}

	set(english, BlobFailed, "%s upload failed")
	set(english, UploadOK, "%s uploaded to %s")
	set(english, UploadFailed, "%s upload failed: %v")
	set(english, DuplicatePath, "%s is already being uploaded")

	set(chinese, BlobFailed, "%s 上传失败")
	set(chinese, UploadOK, "%s 已上传至 %s")
	set(chinese, UploadFailed, "%s 上传失败：%v")
	set(chinese, DuplicatePath, "%s 正在上传中")
}

// Translator formats catalog messages for one locale.
type Translator struct {
	p *message.Printer
}

// New returns a Translator for locale. Unknown or empty locales use English.
func New(locale string) *Translator {
	tag := english
	if parsed, err := language.Parse(locale); err == nil {
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No && idx == 1 {
			tag = chinese
		}
	}
	return &Translator{p: message.NewPrinter(tag, message.Catalog(cat))}
}

// T formats the message stored under key.
func (t *Translator) T(key string, args ...any) string {
	return t.p.Sprintf(key, args...)
}
