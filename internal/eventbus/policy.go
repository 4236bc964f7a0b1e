package eventbus

import (
	"strings"

	"github.com/flitsinc/go-taskfeed/internal/schema"
)

func DefaultOrder(stream string) string {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return "lifo"
	}
	return schema.StreamOrdering(stream)
}
