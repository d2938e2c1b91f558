package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// detailSeparator はdetail配列の各要素を連結する区切り文字。
const detailSeparator = ", "

// envelope はバックエンドのエラーレスポンス本文をフィールド単位で保持する。
type envelope map[string]json.RawMessage

// messageDecoder はエラー本文の形の1つを解釈する。解釈できない場合はfalseを返す。
type messageDecoder func(envelope) (string, bool)

// messageDecoders は優先順位順に並べたデコーダー。最初に成功したものを採用する。
var messageDecoders = []messageDecoder{
	decodeDetailString,
	decodeDetailList,
	decodeDetailValue,
	stringField("message"),
	stringField("error"),
}

// ResolveMessage はエラーレスポンス本文から利用者向けのメッセージを決定する。
// いずれの形にも当てはまらない場合は "<METHOD> failed (<status>)" を返す。
func ResolveMessage(method string, status int, body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env != nil {
		for _, d := range messageDecoders {
			if msg, ok := d(env); ok {
				return msg
			}
		}
	}
	return fmt.Sprintf("%s failed (%d)", strings.ToUpper(method), status)
}

func decodeDetailString(env envelope) (string, bool) {
	raw, ok := env["detail"]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// validationIssue はFastAPI形式のバリデーションエラー要素。
type validationIssue struct {
	Loc      []any  `json:"loc"`
	Location []any  `json:"location"`
	Msg      string `json:"msg"`
	Message  string `json:"message"`
}

func (v validationIssue) text() string {
	loc := v.Loc
	if len(loc) == 0 {
		loc = v.Location
	}
	msg := v.Msg
	if msg == "" {
		msg = v.Message
	}

	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		switch x := p.(type) {
		case string:
			parts = append(parts, x)
		case float64:
			parts = append(parts, strconv.FormatFloat(x, 'f', -1, 64))
		default:
			parts = append(parts, fmt.Sprint(x))
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return strings.Join(parts, ".") + ": " + msg
}

func decodeDetailList(env envelope) (string, bool) {
	raw, ok := env["detail"]
	if !ok {
		return "", false
	}
	var issues []validationIssue
	if err := json.Unmarshal(raw, &issues); err != nil || len(issues) == 0 {
		return "", false
	}

	texts := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Msg == "" && issue.Message == "" {
			return "", false
		}
		texts = append(texts, issue.text())
	}
	return strings.Join(texts, detailSeparator), true
}

// decodeDetailValue は文字列・エラー配列以外のdetailをJSONテキストとして返す。
func decodeDetailValue(env envelope) (string, bool) {
	raw, ok := env["detail"]
	if !ok {
		return "", false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		return "", false
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", false
	}
	return buf.String(), true
}

func stringField(name string) func(envelope) (string, bool) {
	return func(env envelope) (string, bool) {
		raw, ok := env[name]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}
}
