package tcpproxy

import (
	"fmt"
	"math/rand"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// ErrNoValidBackends is returned when a route carries no usable backend
// references, mapped to a 502-equivalent connection refusal.
var ErrNoValidBackends = fmt.Errorf("tcpproxy: no valid backends")

// ChooseBackend performs a weighted-random pick over a route's backend
// references, mirroring the HTTP pipeline's route.backends selection.
func ChooseBackend(refs []store.RouteBackendReference) (store.RouteBackendReference, error) {
	if len(refs) == 0 {
		return store.RouteBackendReference{}, ErrNoValidBackends
	}
	total := 0
	for _, r := range refs {
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	pick := rand.Intn(total)
	for _, r := range refs {
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		if pick < w {
			return r, nil
		}
		pick -= w
	}
	return refs[len(refs)-1], nil
}
