package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
)

func TestNew_BufferHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Successf("sent to %s", "5511999999999")

	assert.Equal(t, Check+" sent to 5511999999999\n", buf.String())
}

func TestFatalError(t *testing.T) {
	var buf bytes.Buffer
	Plain(&buf).FatalError(errors.New("listen :3000: address in use"))

	assert.Equal(t, "╭ Error\n│ listen :3000: address in use\n╵\n", buf.String())
}

func TestFatalError_FieldErrors(t *testing.T) {
	var errs criterio.FieldErrorsBuilder
	errs = errs.Append("listen", errors.New("is required"))
	errs = errs.Append("hooks[0].event", errors.New("invalid pattern"))
	err := fmt.Errorf("load config: invalid config: %w", errs.ToError())

	var buf bytes.Buffer
	Plain(&buf).FatalError(err)

	out := buf.String()
	assert.Contains(t, out, "╭ Validation Error\n")
	assert.Contains(t, out, "│ load config: invalid config\n")
	assert.Contains(t, out, "│ "+Cross+" listen: is required\n")
	assert.Contains(t, out, "│ "+Cross+" hooks[0].event: invalid pattern\n")
}

func TestFatalError_Nil(t *testing.T) {
	var buf bytes.Buffer
	Plain(&buf).FatalError(nil)
	assert.Empty(t, buf.String())
}

func TestItems(t *testing.T) {
	var buf bytes.Buffer
	p := Plain(&buf)

	p.CheckItem("Runtime", "/usr/bin/chromium")
	p.WarnItem("Credential store", "")
	p.FailItem("Config", "invalid")
	p.Hint("edit config.yaml")

	assert.Equal(t,
		"  "+Check+" Runtime: /usr/bin/chromium\n"+
			"  "+Dot+" Credential store\n"+
			"  "+Cross+" Config: invalid\n"+
			"    ↳ edit config.yaml\n",
		buf.String())
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	p := Plain(&buf)

	ctx := NewContext(context.Background(), p)
	assert.Same(t, p, Ctx(ctx))
	assert.NotNil(t, Ctx(context.Background()))
}
