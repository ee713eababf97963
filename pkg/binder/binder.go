package binder

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// Context keys handlers can set before calling c.Bind to loosen the defaults.
const (
	DisallowEmptyBody     = "disallow_empty_body"
	DisallowUnknownFields = "disallow_unknown_fields"
)

// formFilesField is the struct field that receives uploaded files from
// multipart requests. It must be a map[string]*multipart.FileHeader.
const formFilesField = "FormFiles"

// Binder implements echo.Binder. Payloads are decoded from JSON, forms or the
// query string, cleaned up with mold, given their defaults and then validated.
type Binder struct {
	queryDecoder *schema.Decoder
	formDecoder  *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	formDecoder := schema.NewDecoder()
	formDecoder.SetAliasTag("form")
	formDecoder.IgnoreUnknownKeys(true)

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})
	if err := validate.RegisterValidation(date, dateValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{
		queryDecoder: queryDecoder,
		formDecoder:  formDecoder,
		conform:      modifiers.New(),
		validate:     validate,
	}, nil
}

func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	var err error
	switch {
	case req.ContentLength > 0:
		err = b.bindBody(i, c)
	case req.Method == http.MethodGet || req.Method == http.MethodDelete:
		err = b.decode(i, c.QueryParams(), b.queryDecoder)
	case flag(c, DisallowEmptyBody, true):
		err = errcodes.EmptyRequestBody()
	}
	if err != nil {
		return err
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}
	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}
	if err := b.validate.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errcodes.ValidationError(formatValidationError(verrs[0]))
		}
		return errors.WithStack(err)
	}
	return nil
}

func (b *Binder) bindBody(i interface{}, c echo.Context) error {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		return b.bindJSON(i, c)
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		params, err := c.FormParams()
		if err != nil {
			return errcodes.MalformedPayload()
		}
		return b.decode(i, params, b.formDecoder)
	case strings.HasPrefix(ctype, echo.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return errcodes.MalformedPayload()
		}
		if err := b.decode(i, form.Value, b.formDecoder); err != nil {
			return err
		}
		setFormFiles(i, form.File)
		return nil
	default:
		return errcodes.UnsupportedMediaType()
	}
}

func (b *Binder) bindJSON(i interface{}, c echo.Context) error {
	req := c.Request()
	defer req.Body.Close()

	dec := json.NewDecoder(req.Body)
	if flag(c, DisallowUnknownFields, true) {
		dec.DisallowUnknownFields()
	}
	err := dec.Decode(i)
	if err == nil {
		return nil
	}

	if m := unknownFieldsRE.FindStringSubmatch(err.Error()); len(m) > 1 {
		return errcodes.UnknownParameter(m[1])
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
	}

	logger.FromEchoContext(c).Err(err).Error("unknown json decode error")
	return errcodes.MalformedPayload()
}

func (b *Binder) decode(i interface{}, params url.Values, decoder *schema.Decoder) error {
	err := decoder.Decode(i, params)
	if err == nil {
		return nil
	}

	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return errors.WithStack(err)
	}
	for _, e := range multi {
		var conv schema.ConversionError
		if errors.As(e, &conv) {
			return errcodes.ValidationTypeError(formatSchemaConversionError(conv))
		}
		var unknown schema.UnknownKeyError
		if errors.As(e, &unknown) {
			return errcodes.UnknownParameter(unknown.Key)
		}
		return errors.WithStack(e)
	}
	return nil
}

// setFormFiles stores the first file of every multipart field in the struct's
// FormFiles map, if it has one.
func setFormFiles(i interface{}, files map[string][]*multipart.FileHeader) {
	field := reflect.ValueOf(i).Elem().FieldByName(formFilesField)
	if !field.IsValid() || !field.CanSet() || len(files) == 0 {
		return
	}
	m := reflect.MakeMap(field.Type())
	for key, headers := range files {
		if len(headers) > 0 {
			m.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(headers[0]))
		}
	}
	field.Set(m)
}

func flag(c echo.Context, key string, fallback bool) bool {
	if v, ok := c.Get(key).(bool); ok {
		return v
	}
	return fallback
}
