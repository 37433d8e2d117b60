package media

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// FormUpload returns the file sent under field, or nil when the request has
// none. A multipart body that cannot be parsed is an error. The returned func
// closes the underlying file.
func FormUpload(c *fiber.Ctx, field string) (*Upload, func(), error) {
	noop := func() {}
	fh, err := c.FormFile(field)
	switch {
	case errors.Is(err, fasthttp.ErrMissingFile), errors.Is(err, fasthttp.ErrNoMultipartForm):
		return nil, noop, nil
	case err != nil:
		return nil, noop, fmt.Errorf("read %s upload: %w", field, err)
	}
	if fh == nil || fh.Filename == "" {
		return nil, noop, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, err
	}
	return &Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

// FormField returns a pointer to the submitted value, or nil when key was not
// sent at all. An empty value is still returned as present.
func FormField(c *fiber.Ctx, key string) *string {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		if vals, ok := form.Value[key]; ok && len(vals) > 0 {
			v := vals[0]
			return &v
		}
		return nil
	}
	args := c.Request().PostArgs()
	if args.Has(key) {
		v := string(args.Peek(key))
		return &v
	}
	return nil
}

func FormBool(c *fiber.Ctx, key string) bool {
	v := FormField(c, key)
	if v == nil {
		return false
	}
	b, err := strconv.ParseBool(*v)
	return err == nil && b
}
