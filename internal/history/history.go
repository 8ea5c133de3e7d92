// Package history implements the entity history store, the only shared
// mutable state in the assessment pipeline. Record for one entity is
// serialized with per-entity striped locks so concurrent writes build
// on each other's counts; the policy engine holds its own per-entity
// lock across the full lookup-to-record span.
package history

import (
	"hash/fnv"
	"sync"
)

// stripeCount is the number of lock stripes. Entities hash onto
// stripes; contention only occurs between names sharing a stripe.
const stripeCount = 64

type stripes [stripeCount]sync.Mutex

func (s *stripes) forName(normalized string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(normalized))
	return &s[h.Sum32()%stripeCount]
}
