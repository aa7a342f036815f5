//go:build tinygo

package kernel

// TinyGo has no runtime/debug stack dump.
func captureStack() []byte {
	return nil
}
