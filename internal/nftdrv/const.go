package nftdrv

// Fixed, stable object names. They must be identical across Add, Check, and
// Delete for the same topology, and across outer and inner namespaces.
const (
	Table            = "fcnet"
	PostroutingChain = "postrouting"
	FilterChain      = "forward"
	PreroutingChain  = "prerouting"
)
