package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize_ is used in structure padding to prevent false sharing
// between RetroCell's hot state word and its colder, less-contended
// fields. It's automatically calculated using the `golang.org/x/sys`
// package.
const CacheLineSize_ = unsafe.Sizeof(cpu.CacheLinePad{})
