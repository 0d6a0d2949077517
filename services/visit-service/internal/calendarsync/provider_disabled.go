//go:build !protogen

package calendarsync

// NewProvider returns nil in builds without generated gRPC clients; a nil
// provider disables external busy lookups.
func NewProvider(_ string) (Provider, error) {
	return nil, nil
}
