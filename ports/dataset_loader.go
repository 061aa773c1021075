package ports

import (
	"context"

	"counterfact/domain/dataset"
)

// DatasetLoader turns a tabular source into a validated logged dataset
type DatasetLoader interface {
	Load(ctx context.Context, source string, mapping dataset.RoleMapping) (*dataset.Dataset, error)
}
