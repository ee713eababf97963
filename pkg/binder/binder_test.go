package binder

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Hello string `json:"hello" mod:"trim" validate:"max=9"`
	Omit  string `json:"-"`
}

type queryParams struct {
	Q     string `query:"q"`
	Limit int    `query:"limit" default:"24" validate:"min=1,max=100"`
}

type borrowParams struct {
	Days *int `json:"days"`
}

var (
	goodJSON             = `{"hello":" world "}`
	unknownFieldsErrJSON = `{"hello":"world","foo":"bar"}`
	typeErrJSON          = `{"hello":123}`
	validationErrJSON    = `{"hello":"0123456789"}`
)

func TestNew(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)
	assert.NotNil(t, b)

	t.Run("only allows application/json and application/x-www-form-urlencoded", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationXML)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "Unsupported Media Type")
	})

	t.Run("disallows unknown fields", func(tt *testing.T) {
		c := newContext(unknownFieldsErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("returns a good message for type errors", func(tt *testing.T) {
		c := newContext(typeErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"hello" should be of type string`)
	})

	t.Run("use mod tag to modify params", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		require.NoError(tt, err)
		assert.Equal(tt, "world", p.Hello)
	})

	t.Run("use validate tag to validate params", func(tt *testing.T) {
		c := newContext(validationErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "length must be less than or equal to 9 characters")
	})
}

func TestBind_Query(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	t.Run("decodes query params and applies defaults", func(tt *testing.T) {
		c := newQueryContext("/?q=%E4%B8%89%E5%9B%BD")
		p := queryParams{}
		require.NoError(tt, b.Bind(&p, c))
		assert.Equal(tt, "三国", p.Q)
		assert.Equal(tt, 24, p.Limit)
	})

	t.Run("rejects unknown query params", func(tt *testing.T) {
		c := newQueryContext("/?nope=1")
		p := queryParams{}
		err := b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "nope"`)
	})

	t.Run("reports conversion errors", func(tt *testing.T) {
		c := newQueryContext("/?limit=abc")
		p := queryParams{}
		err := b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"limit" should be of type int`)
	})

	t.Run("validates with the query name", func(tt *testing.T) {
		c := newQueryContext("/?limit=500")
		p := queryParams{}
		err := b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"limit" must be less than or equal to 100`)
	})
}

func TestBind_EmptyBody(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	c := newContext("", echo.MIMEApplicationJSON)
	p := borrowParams{}
	err = b.Bind(&p, c)
	assert.Contains(t, err.Error(), "Request body can't be empty.")

	c = newContext("", echo.MIMEApplicationJSON)
	c.Set(DisallowEmptyBody, false)
	p = borrowParams{}
	require.NoError(t, b.Bind(&p, c))
	assert.Nil(t, p.Days)
}

func newQueryContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.GET, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func newContext(payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, mime)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}
