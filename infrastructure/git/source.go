package git

import (
	"context"

	"github.com/helixml/diffsum/domain/change"
)

// Source is a diff provider that knows which paths it holds.
type Source interface {
	change.DiffProvider
	Paths() []string
}

var (
	_ Source = (*CommitDiffProvider)(nil)
	_ Source = (*PatchDiffProvider)(nil)
)

// Units collects every unit of src in path order.
func Units(ctx context.Context, src Source) ([]change.Unit, error) {
	return change.CollectUnits(ctx, src, src.Paths())
}
