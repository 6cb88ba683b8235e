package ports

import "github.com/gangulwar/rollX/internal/domain"

type Sink interface {
	WriteBatch(samples []*domain.Sample) error
	Name() string
}
