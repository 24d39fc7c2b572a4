package ospf

import (
	"net"
	"time"
)

// Protocol-wide timing and sizing constants from RFC 2328 and the defaults
// this package assumes when a collaborator does not override them.
const (
	DefaultHelloInterval      = 10 * time.Second
	DefaultRouterDeadInterval = 40 * time.Second
	DefaultRxmtInterval       = 4 * time.Second
	DefaultInfTransDelay      = 1 * time.Second

	LSRefreshTime  = 1800 * time.Second
	MinLSInterval  = 5 * time.Second
	MinLSArrival   = 1 * time.Second
	MaxAge         = 3600 * time.Second
	CheckAge       = 300 * time.Second
	MaxAgeDiff     = 900 * time.Second

	LSInfinity = 0x00ffffff

	InitialSequenceNumber int32 = -0x7fffffff
	MaxSequenceNumber     int32 = 0x7fffffff
)

// Well-known OSPF multicast group addresses. RFC 2328 defines
// AllSPFRouters as 224.0.0.5; an early revision of this package's ancestor
// mistakenly used 244.0.0.5; that typo is not repeated here.
var (
	AllSPFRouters = net.IPv4(224, 0, 0, 5)
	AllDRouters   = net.IPv4(224, 0, 0, 6)
)

// BackboneArea is the reserved area ID for the OSPF backbone.
var BackboneArea = ID{0, 0, 0, 0}
