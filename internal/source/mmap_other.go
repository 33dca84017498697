//go:build !unix

package source

func mapFile(path string) (*Input, error) {
	return readWhole(path)
}
