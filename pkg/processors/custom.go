package processors

import "context"

// Func is the callback of a Custom processor.
type Func func(ctx context.Context, f *File) error

// Custom runs a user callback.
type Custom struct {
	Label string
	Fn    Func
}

func (c *Custom) Name() string {
	if c.Label == "" {
		return "custom"
	}
	return c.Label
}

func (c *Custom) Process(ctx context.Context, f *File) error {
	if c.Fn == nil {
		return nil
	}
	return c.Fn(ctx, f)
}
