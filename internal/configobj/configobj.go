// Package configobj is the out-of-scope collaborator described in spec
// section 6: the multi-device discovery driver is external to the core,
// but the core's CLI/orchestrator need a concrete shape to accept it as a
// value object. Grounded on the field names of the teacher's
// app/services/config.go Config (destination/source path, log dir), but
// expanded to the multi-device fields spec.md §6 actually names.
package configobj

// DeviceConfig is supplied by the external multi-device driver. The core
// never loads it from disk; a caller builds one and invokes the
// orchestrator once per INCLUDE_DIRS entry.
type DeviceConfig struct {
	DeviceSerial     string
	DeviceName       string
	IncludeDirs      []string // absolute remote POSIX paths
	ExcludeFile      string
	MultipleVersions bool
}
