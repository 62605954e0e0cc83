package pdfgen

import "time"

// TimestampLayout renders times the way zh-CN locales print them,
// e.g. 2024/1/5 09:03:07.
const TimestampLayout = "2006/1/2 15:04:05"

// FormatTimestamp formats t in loc using TimestampLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimestampLayout)
}

// Response messages.
const (
	MsgHealthy        = "PDF生成服务正常运行中"
	MsgMissingContent = "请输入要生成PDF的文本内容"
	MsgGenerated      = "PDF生成成功"
	MsgFailed         = "PDF生成失败，请重试"
	MsgNotFound       = "文件不存在或已过期"
)
