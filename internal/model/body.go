package model

import (
	"bytes"
	"encoding/json"

	"gorm.io/datatypes"
)

// BodyEncodingText data 中保存的是原始请求体的 JSON 字符串形式
const BodyEncodingText = "text"

// EncodeBody 合法 JSON 原样保存，其它内容（表单、纯文本）包成 JSON 字符串并标记 text
func EncodeBody(raw []byte) (datatypes.JSON, string) {
	if len(raw) == 0 {
		return nil, ""
	}
	if json.Valid(raw) {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, ""
	}
	// 不转义 & < >，保存的值与原始请求体一致
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(string(raw))
	return bytes.TrimRight(buf.Bytes(), "\n"), BodyEncodingText
}

// Body 还原回放时要发送的请求体
func (i *QueueItem) Body() []byte {
	if !i.HasBody() {
		return nil
	}
	if i.BodyEncoding == BodyEncodingText {
		var s string
		if err := json.Unmarshal(i.Data, &s); err == nil {
			return []byte(s)
		}
	}
	return i.Data
}
