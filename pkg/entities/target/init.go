package target

import "github.com/ajitpratap0/bioetl/pkg/extraction"

func init() {
	extraction.MustRegister(Descriptor())
}
