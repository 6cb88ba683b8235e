package ports

import "github.com/gangulwar/rollX/internal/domain"

// Collector receives samples from producers and pushes them into the pipeline.
type Collector interface {
	Start(out chan<- *domain.Sample) error
	Stop() error
}
