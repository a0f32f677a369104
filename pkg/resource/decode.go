package resource

import (
	"context"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Decode reads r as YAML (or JSON) into v.
func Decode(ctx context.Context, r Resource, v any) error {
	bs, err := Bytes(ctx, r)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(bs, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", r, err)
	}
	return nil
}
