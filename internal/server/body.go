package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const maxFormMemory = 8 << 20

const supportedTypes = "application/json, multipart/form-data, application/x-www-form-urlencoded"

// requestBody holds decoded request fields. JSON values keep their decoded
// type so callers can reject non-string fields.
type requestBody map[string]any

// strings returns the fields as text for presence checks. Values JSON
// treats as falsy render as empty.
func (b requestBody) strings() map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		switch v := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = v
		case bool:
			if v {
				out[k] = "true"
			} else {
				out[k] = ""
			}
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// text returns the string value of key and whether it is a string.
func (b requestBody) text(key string) (string, bool) {
	s, ok := b[key].(string)
	return s, ok
}

// bodyError is a parse failure already shaped for the envelope.
type bodyError struct {
	message string
	details any
}

func (e *bodyError) Error() string {
	return e.message
}

// parseJSON decodes a JSON object body.
func parseJSON(c *gin.Context) (requestBody, error) {
	body := requestBody{}
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &bodyError{message: "Invalid JSON in request body", details: err.Error()}
	}
	return body, nil
}

// parseBody decodes JSON, multipart and URL-encoded bodies. Uploaded files
// are represented by their file name.
func parseBody(c *gin.Context) (requestBody, error) {
	contentType := c.ContentType()

	switch contentType {
	case binding.MIMEJSON:
		return parseJSON(c)
	case binding.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return nil, &bodyError{message: "Invalid form data in request body", details: err.Error()}
		}
		body := requestBody{}
		for k, files := range form.File {
			if len(files) > 0 {
				body[k] = files[0].Filename
			}
		}
		for k, vals := range form.Value {
			if len(vals) > 0 {
				body[k] = vals[0]
			}
		}
		return body, nil
	case binding.MIMEPOSTForm:
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormMemory)
		if err := c.Request.ParseForm(); err != nil {
			return nil, &bodyError{message: "Invalid form data in request body", details: err.Error()}
		}
		body := requestBody{}
		for k, vals := range c.Request.PostForm {
			if len(vals) > 0 {
				body[k] = vals[0]
			}
		}
		return body, nil
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = "not specified"
	}
	return nil, &bodyError{
		message: fmt.Sprintf("Unsupported content type: %s. Supported types: %s", contentType, supportedTypes),
		details: map[string]string{"contentType": contentType},
	}
}
