// Package xds applies decoded control-plane resources to the routing and
// discovery stores. It deliberately stops short of the ADS gRPC transport
// (an external collaborator per the config-plane contract) and starts at the
// boundary where a resource has already been demultiplexed by type-URL and
// decoded into the shapes below: ConfigResource for Bind/Listener/Route and
// AddressResource for Workload/Service. Whatever drives the actual delta-xDS
// stream decodes onto the wire DiscoveryResponse, then calls Handler.Apply*
// per resource and reports the returned nacks back upstream.
package xds

import (
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// ConfigKind names which of the three routing-store resource types a
// ConfigResource carries.
type ConfigKind string

const (
	KindBind     ConfigKind = "bind"
	KindListener ConfigKind = "listener"
	KindRoute    ConfigKind = "route"
)

// ConfigResource is one ADPResource{Bind|Listener|Route} entry from a delta
// discovery response. Name carries the kind prefix the resource was keyed
// under ("bind/", "listener/", "route/"); on removal only Kind and Name are
// populated. Listener and Route resources nest under a parent, so their
// resource name also encodes the parent key(s): a Listener's Name is
// "listener/<bindKey>/<listenerKey>", a Route's is
// "route/<bindKey>/<listenerKey>/<routeKey>".
type ConfigResource struct {
	Kind   ConfigKind `validate:"required,oneof=bind listener route"`
	Name   string     `validate:"required"`
	Remove bool

	Bind     *store.Bind     `validate:"required_if=Kind bind Remove false,excluded_if=Remove true"`
	Listener *store.Listener `validate:"required_if=Kind listener Remove false,excluded_if=Remove true"`
	Route    *store.Route    `validate:"required_if=Kind route Remove false,excluded_if=Remove true"`
}

// AddressKind names which discovery resource type an AddressResource carries.
type AddressKind string

const (
	KindWorkload AddressKind = "workload"
	KindService  AddressKind = "service"
)

// AddressResource is one discovery Address{Workload|Service} entry. Name is
// the workload UID for a Workload resource, or "<namespace>/<hostname>" for
// a Service resource -- the same name a removal carries alone.
type AddressResource struct {
	Kind   AddressKind `validate:"required,oneof=workload service"`
	Name   string      `validate:"required"`
	Remove bool

	Workload *discovery.Workload `validate:"required_if=Kind workload Remove false,excluded_if=Remove true"`
	Service  *discovery.Service  `validate:"required_if=Kind service Remove false,excluded_if=Remove true"`
}

// Result reports the outcome of applying one resource, keyed by its name so
// the (external) ADS transport can build a per-resource nack list.
type Result struct {
	Name string
	Err  error
}

// Nacks filters a Result slice down to the entries that failed, the shape
// the ADS transport needs to build its nack response.
func Nacks(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
