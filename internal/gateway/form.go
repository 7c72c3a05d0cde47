package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
)

type formFile struct {
	field    string
	filename string
	data     []byte
}

type formField struct {
	name  string
	value string
}

// Form is a multipart upload: plain fields plus file parts, written in insertion order.
type Form struct {
	fields []formField
	files  []formFile
}

func NewForm() *Form { return &Form{} }

func (f *Form) Field(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

func (f *Form) File(field, filename string, data []byte) *Form {
	f.files = append(f.files, formFile{field: field, filename: filename, data: data})
	return f
}

func (f *Form) encode() (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, file := range f.files {
		part, err := writer.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", file.field, err)
		}
	}
	for _, field := range f.fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
