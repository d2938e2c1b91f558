package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Request は1回の呼び出しを表すリクエスト記述子。呼び出しごとに生成し、永続化しない。
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body はJSONに変換可能な値、または*FormData。nilの場合はボディを送らない。
	Body any
	// Header は追加のリクエストヘッダー。
	Header http.Header
	// WithCredentials はCookie送受信の呼び出し単位の上書き。
	// nilの場合はポリシー表に従う。ポリシーがCookieを禁止するエンドポイントでは無視される。
	WithCredentials *bool
}

// Bool はWithCredentialsに渡すためのヘルパー。
func Bool(v bool) *bool {
	return &v
}

// FormData はmultipart/form-dataで送信するボディ。
type FormData struct {
	Fields []FormField
	Files  []FormFile
}

// FormField はテキストフィールド。
type FormField struct {
	Name  string
	Value string
}

// FormFile はファイルフィールド。ContentTypeが空の場合はapplication/octet-streamになる。
type FormFile struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// AddField はテキストフィールドを追加する。
func (f *FormData) AddField(name, value string) {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
}

// AddFile はファイルフィールドを追加する。
func (f *FormData) AddFile(field, fileName, contentType string, content io.Reader) {
	f.Files = append(f.Files, FormFile{
		Field:       field,
		FileName:    fileName,
		ContentType: contentType,
		Content:     content,
	})
}

// encode はボディを書き出し、境界値を含むContent-Typeを返す。
func (f *FormData) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", field.Name, err)
		}
	}

	for _, file := range f.Files {
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.Field), escapeQuotes(file.FileName)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %q: %w", file.FileName, err)
		}
		if file.Content != nil {
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", fmt.Errorf("failed to copy form file %q: %w", file.FileName, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// encodeBody はリクエストボディを送信用に変換する。
// 戻り値のContent-Typeはボディの種類から決まる既定値であり、ボディが無い場合は空文字列。
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *FormData:
		return b.encode()
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// isForm はボディがmultipartフォームかどうかを返す。
func isForm(body any) bool {
	_, ok := body.(*FormData)
	return ok
}
